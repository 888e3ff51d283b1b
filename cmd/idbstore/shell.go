package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/spf13/cobra"

	"github.com/nainya/idbstore/pkg/idb"
	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/value"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive shell over a fresh in-memory engine",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "idb> ",
			HistoryFile:     cfg.HistoryFile,
			AutoComplete:    completer,
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",

			HistorySearchFold:   true,
			FuncFilterInputRune: filterInput,
		})
		if err != nil {
			return err
		}
		defer rl.Close()
		rl.CaptureExitSignal()

		sh := newShell(newFactory(nil), cmd.OutOrStdout())
		for {
			line, err := rl.Readline()
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil
				}
				continue
			}
			if err != nil {
				return nil
			}
			if err := sh.Exec(line); err != nil {
				if errors.Is(err, io.EOF) {
					return nil
				}
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
		}
	},
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("open"),
	readline.PcItem("close"),
	readline.PcItem("dbs"),
	readline.PcItem("drop"),

	readline.PcItem("stores"),
	readline.PcItem("create"),
	readline.PcItem("index"),

	readline.PcItem("put"),
	readline.PcItem("add"),
	readline.PcItem("get"),
	readline.PcItem("del"),
	readline.PcItem("count"),
	readline.PcItem("list"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const shellHelp = `open <db> [version]              connect, creating the database if needed
close                            close the current connection
dbs                              list databases
drop <db>                        delete a database
stores                           list object stores
create <store> [keypath] [auto]  add an object store (upgrades the database)
index <store> <name> <keypath> [unique] [multi]
put|add <store> <json> [key]     write a value; key is JSON or a bare string
get|del <store> <key>            read or delete one record
count <store>                    count records
list <store> [limit] [prev]      walk records with a cursor
exit                             leave the shell`

// shell runs text commands against one factory.
type shell struct {
	f   *idb.Factory
	db  *idb.Database
	out io.Writer
}

func newShell(f *idb.Factory, out io.Writer) *shell {
	return &shell{f: f, out: out}
}

var errNoDatabase = errors.New("no open database, use: open <db>")

// Exec runs one command line. io.EOF means the user asked to leave.
func (sh *shell) Exec(line string) error {
	args := splitArgs(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
		return nil
	case "exit", "quit":
		sh.close()
		return io.EOF
	case "open":
		return sh.open(args)
	case "close":
		sh.close()
		return nil
	case "dbs":
		for _, info := range sh.f.Databases() {
			fmt.Fprintf(sh.out, "%s\tv%d\n", info.Name, info.Version)
		}
		return nil
	case "drop":
		return sh.drop(args)
	}

	if sh.db == nil {
		return errNoDatabase
	}
	switch cmd {
	case "stores":
		fmt.Fprintln(sh.out, strings.Join(sh.db.ObjectStoreNames(), "\n"))
		return nil
	case "create":
		return sh.create(args)
	case "index":
		return sh.index(args)
	case "put", "add":
		return sh.put(cmd, args)
	case "get":
		return sh.get(args)
	case "del":
		return sh.del(args)
	case "count":
		return sh.count(args)
	case "list":
		return sh.list(args)
	}
	return fmt.Errorf("unknown command %q, try help", cmd)
}

// splitArgs splits on whitespace but keeps JSON brackets and quotes whole.
func splitArgs(line string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
		quote bool
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote:
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				cur.WriteByte(line[i])
			} else if c == '"' {
				quote = false
			}
		case c == '"':
			quote = true
			cur.WriteByte(c)
		case c == '{' || c == '[':
			depth++
			cur.WriteByte(c)
		case c == '}' || c == ']':
			depth--
			cur.WriteByte(c)
		case (c == ' ' || c == '\t') && depth == 0:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()
	return out
}

func parseValue(s string) (value.Value, error) {
	var x any
	if err := json.Unmarshal([]byte(s), &x); err != nil {
		return value.String(s), nil
	}
	return value.FromGo(x)
}

func parseKey(s string) (keys.Key, error) {
	v, err := parseValue(s)
	if err != nil {
		return keys.None, err
	}
	return keys.FromValue(v)
}

func (sh *shell) await(r *idb.Request) (any, error) {
	if r.ReadyState() != idb.Done {
		return nil, errors.New("request is still pending")
	}
	return r.Result(), r.Err()
}

func (sh *shell) connect(name string, version uint64, upgrade func(*idb.Database, *idb.Transaction) error) error {
	var (
		req        *idb.OpenRequest
		upgradeErr error
	)
	sh.f.Do(func() {
		req = sh.f.Open(name, version)
		req.OnBlocked(func(*idb.OpenRequest, idb.VersionChangeEvent) {
			fmt.Fprintln(sh.out, "blocked by other connections")
		})
		req.OnUpgradeNeeded(func(r *idb.OpenRequest, ev idb.UpgradeEvent) {
			if upgrade == nil {
				return
			}
			if upgradeErr = upgrade(r.Database(), r.Transaction()); upgradeErr != nil {
				_ = r.Transaction().Abort()
			}
		})
	})
	if upgradeErr != nil {
		return upgradeErr
	}
	res, err := sh.await(req.Request)
	if err != nil {
		return err
	}
	sh.db = res.(*idb.Database)
	return nil
}

func (sh *shell) open(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: open <db> [version]")
	}
	var version uint64
	if len(args) > 1 {
		v, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("bad version %q", args[1])
		}
		version = v
	}
	sh.close()
	if err := sh.connect(args[0], version, nil); err != nil {
		return err
	}
	fmt.Fprintf(sh.out, "%s v%d\n", sh.db.Name(), sh.db.Version())
	return nil
}

func (sh *shell) close() {
	if sh.db != nil {
		sh.f.Do(sh.db.Close)
		sh.db = nil
	}
}

func (sh *shell) drop(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: drop <db>")
	}
	if sh.db != nil && sh.db.Name() == args[0] {
		sh.close()
	}
	var req *idb.OpenRequest
	sh.f.Do(func() { req = sh.f.DeleteDatabase(args[0]) })
	_, err := sh.await(req.Request)
	return err
}

// upgrade reopens the current database one version up and runs fn in the
// version change transaction.
func (sh *shell) upgrade(fn func(*idb.Database, *idb.Transaction) error) error {
	name, next := sh.db.Name(), sh.db.Version()+1
	sh.close()
	if err := sh.connect(name, next, fn); err != nil {
		// stay connected at the old version
		if reopen := sh.connect(name, 0, nil); reopen != nil {
			return errors.Join(err, reopen)
		}
		return err
	}
	return nil
}

func (sh *shell) create(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: create <store> [keypath] [auto]")
	}
	var opts idb.StoreOptions
	for _, a := range args[1:] {
		if a == "auto" {
			opts.AutoIncrement = true
		} else {
			opts.KeyPath = keys.Path(a)
		}
	}
	return sh.upgrade(func(db *idb.Database, _ *idb.Transaction) error {
		_, err := db.CreateObjectStore(args[0], opts)
		return err
	})
}

func (sh *shell) index(args []string) error {
	if len(args) < 3 {
		return errors.New("usage: index <store> <name> <keypath> [unique] [multi]")
	}
	var opts idb.IndexOptions
	for _, a := range args[3:] {
		switch a {
		case "unique":
			opts.Unique = true
		case "multi":
			opts.MultiEntry = true
		}
	}
	return sh.upgrade(func(_ *idb.Database, tx *idb.Transaction) error {
		s, err := tx.ObjectStore(args[0])
		if err != nil {
			return err
		}
		_, err = s.CreateIndex(args[1], keys.Path(args[2]), opts)
		return err
	})
}

// request runs fn against a store in a fresh transaction and waits for
// the request it returns.
func (sh *shell) request(store string, mode idb.Mode, fn func(*idb.ObjectStore) *idb.Request) (any, error) {
	var (
		req *idb.Request
		err error
	)
	sh.f.Do(func() {
		var tx *idb.Transaction
		if tx, err = sh.db.Transaction([]string{store}, mode); err != nil {
			return
		}
		var s *idb.ObjectStore
		if s, err = tx.ObjectStore(store); err != nil {
			return
		}
		req = fn(s)
	})
	if err != nil {
		return nil, err
	}
	return sh.await(req)
}

func (sh *shell) put(op string, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s <store> <json> [key]", op)
	}
	v, err := parseValue(args[1])
	if err != nil {
		return err
	}
	key := keys.None
	if len(args) > 2 {
		if key, err = parseKey(args[2]); err != nil {
			return err
		}
	}
	res, err := sh.request(args[0], idb.ReadWrite, func(s *idb.ObjectStore) *idb.Request {
		if op == "add" {
			return s.Add(v, key)
		}
		return s.Put(v, key)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, res.(keys.Key))
	return nil
}

func (sh *shell) get(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: get <store> <key>")
	}
	key, err := parseKey(args[1])
	if err != nil {
		return err
	}
	res, err := sh.request(args[0], idb.ReadOnly, func(s *idb.ObjectStore) *idb.Request {
		return s.Get(key)
	})
	if err != nil {
		return err
	}
	if res == nil {
		fmt.Fprintln(sh.out, "(none)")
		return nil
	}
	fmt.Fprintln(sh.out, value.Format(res.(value.Value)))
	return nil
}

func (sh *shell) del(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: del <store> <key>")
	}
	key, err := parseKey(args[1])
	if err != nil {
		return err
	}
	_, err = sh.request(args[0], idb.ReadWrite, func(s *idb.ObjectStore) *idb.Request {
		return s.Delete(key)
	})
	return err
}

func (sh *shell) count(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: count <store>")
	}
	res, err := sh.request(args[0], idb.ReadOnly, func(s *idb.ObjectStore) *idb.Request {
		return s.Count(nil)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(sh.out, res.(int))
	return nil
}

func (sh *shell) list(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: list <store> [limit] [prev]")
	}
	limit, dir := 0, idb.Next
	for _, a := range args[1:] {
		if a == "prev" {
			dir = idb.Prev
		} else if n, err := strconv.Atoi(a); err == nil {
			limit = n
		}
	}

	var (
		lines []string
		err   error
	)
	sh.f.Do(func() {
		var tx *idb.Transaction
		if tx, err = sh.db.Transaction([]string{args[0]}, idb.ReadOnly); err != nil {
			return
		}
		var s *idb.ObjectStore
		if s, err = tx.ObjectStore(args[0]); err != nil {
			return
		}
		var step func(*idb.Request)
		step = func(r *idb.Request) {
			c, ok := r.Result().(*idb.Cursor)
			if !ok {
				return
			}
			lines = append(lines, fmt.Sprintf("%s => %s", c.Key(), value.Format(c.Value())))
			if limit > 0 && len(lines) >= limit {
				return
			}
			c.Continue(keys.None).OnSuccess(step)
		}
		s.OpenCursor(nil, dir).
			OnSuccess(step).
			OnError(func(r *idb.Request) { err = r.Err() })
	})
	if err != nil {
		return err
	}
	for _, l := range lines {
		fmt.Fprintln(sh.out, l)
	}
	return nil
}
