package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/bag"
	"github.com/arkilian/nanostore/internal/query"
	"github.com/arkilian/nanostore/internal/storage"
	"github.com/arkilian/nanostore/pkg/types"
)

func sortedCommands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nanostore %s\n", commands[name].usage)
		fs.PrintDefaults()
	}
	return fs
}

// writeJSON prints v as indented JSON on stdout.
func writeJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(b))
	return err
}

// describe renders a document for output.
func describe(doc types.Document) map[string]any {
	out := map[string]any{
		"key":  doc.Key(),
		"type": types.TypeTagOf(doc),
	}
	if b, ok := doc.(*bag.Bag); ok {
		out["name"] = b.Name()
		out["members"] = b.Keys()
		return out
	}
	out["attributes"] = types.JSONSafe(doc.Snapshot())
	return out
}

func describeAll(docs []types.Document) []map[string]any {
	out := make([]map[string]any, len(docs))
	for i, doc := range docs {
		out[i] = describe(doc)
	}
	return out
}

// readDocuments decodes one JSON object or an array of objects. Integral
// numbers become int64, others float64.
func readDocuments(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON input: %w", err)
	}

	switch x := fromJSON(v).(type) {
	case map[string]any:
		return []map[string]any{x}, nil
	case []any:
		out := make([]map[string]any, 0, len(x))
		for i, item := range x {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("input element %d is not an object", i)
			}
			out = append(out, m)
		}
		return out, nil
	}
	return nil, fmt.Errorf("input must be an object or an array of objects")
}

func fromJSON(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, child := range x {
			x[k] = fromJSON(child)
		}
		return x
	case []any:
		for i, child := range x {
			x[i] = fromJSON(child)
		}
		return x
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	}
	return v
}

// parseOperand turns a flag value into a search operand. JSON numbers
// compare numerically and "null" matches null leaves. A value wrapped in
// single or double quotes is always text, as is anything that is not a
// well-formed JSON number ("01234", "inf").
func parseOperand(s string) any {
	if s == "null" {
		return query.Null
	}
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	if s == "" || !(s[0] == '-' || (s[0] >= '0' && s[0] <= '9')) || !json.Valid([]byte(s)) {
		return s
	}
	return fromJSON(json.Number(s))
}

func runPut(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("put")
	class := fs.String("class", "", "Type tag of the documents")
	key := fs.String("key", "", "Key of the document (single document input only)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := io.Reader(os.Stdin)
	if fs.NArg() > 0 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	inputs, err := readDocuments(in)
	if err != nil {
		return err
	}
	if *key != "" && len(inputs) != 1 {
		return fmt.Errorf("-key needs exactly one document, got %d", len(inputs))
	}

	docs := make([]types.Document, len(inputs))
	for i, attrs := range inputs {
		docs[i] = types.NewTaggedObject(*class, *key, attrs)
	}
	if err := env.store.Transaction(ctx, func(ctx context.Context) error {
		return env.store.AddObjects(ctx, docs...)
	}); err != nil {
		return err
	}

	keys := make([]string, len(docs))
	for i, doc := range docs {
		keys[i] = doc.Key()
	}
	env.logger.Info("documents stored", zap.Int("count", len(keys)))
	return writeJSON(keys)
}

func runGet(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("get needs at least one key")
	}
	docs, err := env.store.ObjectsWithKeys(ctx, args)
	if err != nil {
		return err
	}
	out := make([]map[string]any, 0, len(args))
	for _, k := range args {
		if doc, ok := docs[k]; ok {
			out = append(out, describe(doc))
		}
	}
	return writeJSON(out)
}

// searchFlags binds the flags shared by search and aggregate.
type searchFlags struct {
	attr, value, match, class, key string
	text                           bool
}

func (f *searchFlags) bind(fs *flag.FlagSet) {
	fs.StringVar(&f.attr, "attr", "", "Attribute path to match")
	fs.StringVar(&f.value, "value", "", "Value to match")
	fs.StringVar(&f.match, "match", "contains", "Match type (equalTo, beginsWith, contains, endsWith, insensitive*, greaterThan, lessThan, notEqualTo)")
	fs.StringVar(&f.class, "class", "", "Restrict to one type tag")
	fs.StringVar(&f.key, "key", "", "Document key to match")
	fs.BoolVar(&f.text, "text", false, "Match -value as text even when it looks like a number")
}

func (f *searchFlags) search() (*query.Search, error) {
	sr := query.NewSearch()
	m, err := query.ParseMatchType(f.match)
	if err != nil {
		return nil, err
	}
	sr.Match = m
	sr.Key = f.key
	sr.Attribute = f.attr
	sr.FilterClass = f.class
	switch {
	case f.value == "":
	case f.text:
		sr.Value = f.value
	default:
		sr.Value = parseOperand(f.value)
	}
	return sr, nil
}

func runSearch(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("search")
	var sf searchFlags
	sf.bind(fs)
	sorts := fs.String("sort", "", "Comma-separated sort paths, each optionally suffixed with :desc")
	returned := fs.String("return", "", "Comma-separated top-level attributes to return")
	limit := fs.Int("limit", 0, "Maximum number of results")
	offset := fs.Int("offset", 0, "Number of results to skip")
	keysOnly := fs.Bool("keys", false, "Return keys instead of documents")
	explain := fs.Bool("explain", false, "Print the query plan instead of running the search")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sr, err := sf.search()
	if err != nil {
		return err
	}
	sr.Limit = *limit
	sr.Offset = *offset
	if *keysOnly {
		sr.ReturnType = query.ReturnKeys
	}
	if *returned != "" {
		sr.AttributesToBeReturned = strings.Split(*returned, ",")
	}
	if *sorts != "" {
		for _, part := range strings.Split(*sorts, ",") {
			path, dir, _ := strings.Cut(part, ":")
			sr.SortDescriptors = append(sr.SortDescriptors, query.NewSortDescriptor(path, !strings.EqualFold(dir, "desc")))
		}
	}

	if *explain {
		plan, err := env.store.ExplainSearch(ctx, sr)
		if err != nil {
			return err
		}
		return writeJSON(plan.Records())
	}

	res, err := env.store.Search(ctx, sr)
	if err != nil {
		return err
	}
	if sr.ReturnType == query.ReturnKeys {
		return writeJSON(res.Keys)
	}
	return writeJSON(describeAll(res.Objects))
}

func runRemove(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("remove")
	all := fs.Bool("all", false, "Remove every document")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *all {
		return env.store.RemoveAllObjects(ctx)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("remove needs at least one key or -all")
	}
	return env.store.RemoveObjectsWithKeys(ctx, fs.Args()...)
}

func runAggregate(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("aggregate")
	var sf searchFlags
	sf.bind(fs)
	fn := fs.String("fn", "count", "Aggregate function: avg, count, max, min, total")
	over := fs.String("over", "", "Attribute path to aggregate (empty counts documents)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	agg, err := query.ParseAggregate(*fn)
	if err != nil {
		return err
	}
	sr, err := sf.search()
	if err != nil {
		return err
	}
	v, err := env.store.Aggregate(ctx, sr, agg, *over)
	if err != nil {
		return err
	}
	return writeJSON(v)
}

func runSQL(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("sql")
	objects := fs.Bool("objects", false, "Hydrate the rows as documents")
	keys := fs.Bool("keys", false, "Return the keys of the rows")
	explain := fs.Bool("explain", false, "Print the query plan")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("sql needs exactly one statement")
	}
	stmt := fs.Arg(0)

	switch {
	case *explain:
		plan, err := env.store.ExplainSQL(ctx, stmt)
		if err != nil {
			return err
		}
		return writeJSON(plan.Records())
	case *objects:
		res, err := env.store.ExecuteSQLReturning(ctx, stmt, query.ReturnObjects)
		if err != nil {
			return err
		}
		return writeJSON(describeAll(res.Objects))
	case *keys:
		res, err := env.store.ExecuteSQLReturning(ctx, stmt, query.ReturnKeys)
		if err != nil {
			return err
		}
		return writeJSON(res.Keys)
	}
	res, err := env.store.ExecuteSQL(ctx, stmt)
	if err != nil {
		return err
	}
	desc, err := res.JSONDescription()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, desc)
	return err
}

func runClasses(ctx context.Context, env *environment, _ []string) error {
	classes, err := env.store.AllObjectClasses(ctx)
	if err != nil {
		return err
	}
	counts := make(map[string]int64, len(classes))
	for _, class := range classes {
		n, err := env.store.CountOfObjectsOfClassNamed(ctx, class)
		if err != nil {
			return err
		}
		counts[class] = n
	}
	return writeJSON(counts)
}

func runBags(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("bags")
	name := fs.String("name", "", "Only bags with this name")
	containing := fs.String("containing", "", "Only bags listing this key")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		bags []*bag.Bag
		err  error
	)
	switch {
	case *name != "":
		bags, err = env.store.BagsWithName(ctx, *name)
	case *containing != "":
		bags, err = env.store.BagsContainingObjectWithKey(ctx, *containing)
	default:
		bags, err = env.store.Bags(ctx)
	}
	if err != nil {
		return err
	}
	out := make([]map[string]any, len(bags))
	for i, b := range bags {
		out[i] = describe(b)
	}
	return writeJSON(out)
}

func runCompact(ctx context.Context, env *environment, _ []string) error {
	return env.store.Compact(ctx)
}

func runIntegrity(ctx context.Context, env *environment, _ []string) error {
	ok, messages, err := env.store.IntegrityCheck(ctx)
	if err != nil {
		return err
	}
	if err := writeJSON(map[string]any{"ok": ok, "messages": messages}); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("integrity check failed")
	}
	return nil
}

func runIndexes(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		args = []string{"list"}
	}
	s := env.store
	switch args[0] {
	case "list":
		infos, err := s.AttributeIndexes(ctx)
		if err != nil {
			return err
		}
		return writeJSON(infos)
	case "create", "drop":
		if len(args) != 2 {
			return fmt.Errorf("indexes %s needs one attribute path", args[0])
		}
		if args[0] == "create" {
			return s.CreateAttributeIndex(ctx, args[1])
		}
		return s.DropAttributeIndex(ctx, args[1])
	case "clear":
		return s.ClearIndexes(ctx)
	case "rebuild":
		return s.RebuildIndexes(ctx)
	}
	return fmt.Errorf("unknown indexes action %q", args[0])
}

func newBackup(ctx context.Context, env *environment) (*storage.Backup, error) {
	return storage.NewBackupFromConfig(ctx, env.cfg.Backup, env.logger)
}

func runBackup(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet("backup")
	name := fs.String("name", "", "Object name (default: timestamped)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	b, err := newBackup(ctx, env)
	if err != nil {
		return err
	}
	path, err := env.store.Backup(ctx, b, *name)
	if err != nil {
		return err
	}
	return writeJSON(path)
}

func runBackups(ctx context.Context, env *environment, _ []string) error {
	b, err := newBackup(ctx, env)
	if err != nil {
		return err
	}
	objects, err := b.List(ctx)
	if err != nil {
		return err
	}
	return writeJSON(objects)
}

func runRestore(ctx context.Context, env *environment, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("restore needs an object path and a destination file")
	}
	b, err := newBackup(ctx, env)
	if err != nil {
		return err
	}
	return b.Restore(ctx, args[0], args[1])
}
