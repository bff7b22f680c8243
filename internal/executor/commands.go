package executor

import (
	"strconv"
	"strings"

	"github.com/tokmesh/cluster/internal/storage/kv"
)

// SimpleString is a RESP simple-string reply ("+OK\r\n"), as opposed to a
// bulk string reply carried as []byte.
type SimpleString string

// command is one entry of the command metadata table named in §4.8 step 4:
// {indices_datos, es_mutable} plus the handler itself.
type command struct {
	minArgs     int // including the command name token
	dataIndices []int
	mutable     bool
	handler     func(store *kv.Store, tokens []string) (any, error)
}

// dataIndexLookup adapts the command table into the aof.DataIndexLookup
// shape, so AOF encryption and the executor share one source of truth for
// which tokens of a given command carry key/value data.
func dataIndexLookup(name string) ([]int, bool) {
	c, ok := commandTable[strings.ToUpper(name)]
	if !ok {
		return nil, false
	}
	return c.dataIndices, true
}

var commandTable map[string]command

func init() {
	// DEL, LPUSH and RPUSH take a variable number of key/value tokens, so
	// every index after the command name is listed (up to 4096 tokens, more
	// than one client frame can carry).
	variadic := make([]int, 0, 4095)
	for i := 1; i < 4096; i++ {
		variadic = append(variadic, i)
	}

	commandTable = map[string]command{
		"GET":     {2, []int{1}, false, cmdGet},
		"SET":     {3, []int{1, 2}, true, cmdSet},
		"DEL":     {2, variadic, true, cmdDel},
		"GETDEL":  {2, []int{1}, true, cmdGetDel},
		"APPEND":  {3, []int{1, 2}, true, cmdAppend},
		"STRLEN":  {2, []int{1}, false, cmdStrlen},
		"SUBSTR":  {4, []int{1}, false, cmdSubstr},
		"INCR":    {2, []int{1}, true, cmdIncr},
		"DECR":    {2, []int{1}, true, cmdDecr},
		"LPUSH":   {3, variadic, true, cmdLPush},
		"RPUSH":   {3, variadic, true, cmdRPush},
		"LPOP":    {2, []int{1}, true, cmdLPop},
		"RPOP":    {2, []int{1}, true, cmdRPop},
		"LLEN":    {2, []int{1}, false, cmdLLen},
		"LRANGE":  {4, []int{1}, false, cmdLRange},
		"LINDEX":  {3, []int{1}, false, cmdLIndex},
		"LSET":    {4, []int{1, 3}, true, cmdLSet},
		"LTRIM":   {4, []int{1}, true, cmdLTrim},
		"LREM":    {4, []int{1, 3}, true, cmdLRem},
		"LINSERT": {5, []int{1, 4}, true, cmdLInsert},
		"LMOVE":   {5, []int{1, 2}, true, cmdLMove},
	}
}

func cmdGet(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 2 {
		return nil, errWrongNumArgs("get")
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if v.Kind != kv.KindString {
		return nil, errWrongType()
	}
	return v.Str, nil
}

func cmdSet(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 3 {
		return nil, errWrongNumArgs("set")
	}
	if err := store.Set(tokens[1], kv.StringValue([]byte(tokens[2]))); err != nil {
		return nil, err
	}
	return SimpleString("OK"), nil
}

func cmdDel(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) < 2 {
		return nil, errWrongNumArgs("del")
	}
	var count int64
	for _, key := range tokens[1:] {
		existed, err := store.Remove(key)
		if err != nil {
			return nil, err
		}
		if existed {
			count++
		}
	}
	return count, nil
}

func cmdGetDel(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 2 {
		return nil, errWrongNumArgs("getdel")
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if v.Kind != kv.KindString {
		return nil, errWrongType()
	}
	if _, err := store.Remove(tokens[1]); err != nil {
		return nil, err
	}
	return v.Str, nil
}

func cmdAppend(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 3 {
		return nil, errWrongNumArgs("append")
	}
	var newLen int
	var typeErr error
	err := store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if exists && v.Kind != kv.KindString {
			typeErr = errWrongType()
			return v, false
		}
		merged := append(append([]byte{}, v.Str...), tokens[2]...)
		newLen = len(merged)
		return kv.StringValue(merged), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	return int64(newLen), nil
}

func cmdStrlen(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 2 {
		return nil, errWrongNumArgs("strlen")
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return int64(0), nil
	}
	if v.Kind != kv.KindString {
		return nil, errWrongType()
	}
	return int64(len(v.Str)), nil
}

func cmdSubstr(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 4 {
		return nil, errWrongNumArgs("substr")
	}
	start, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errNotInteger()
	}
	end, err := strconv.Atoi(tokens[3])
	if err != nil {
		return nil, errNotInteger()
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte{}, nil
	}
	if v.Kind != kv.KindString {
		return nil, errWrongType()
	}
	s, e := clampRange(start, end, len(v.Str))
	if s > e {
		return []byte{}, nil
	}
	return v.Str[s : e+1], nil
}

func cmdIncr(store *kv.Store, tokens []string) (any, error) {
	return incrBy(store, tokens, 1, "incr")
}

func cmdDecr(store *kv.Store, tokens []string) (any, error) {
	return incrBy(store, tokens, -1, "decr")
}

func incrBy(store *kv.Store, tokens []string, delta int64, name string) (any, error) {
	if len(tokens) != 2 {
		return nil, errWrongNumArgs(name)
	}
	var result int64
	var opErr error
	err := store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if exists && v.Kind != kv.KindString {
			opErr = errWrongType()
			return v, false
		}
		cur := int64(0)
		if exists && len(v.Str) > 0 {
			n, err := strconv.ParseInt(string(v.Str), 10, 64)
			if err != nil {
				opErr = errNotInteger()
				return v, false
			}
			cur = n
		}
		result = cur + delta
		return kv.StringValue([]byte(strconv.FormatInt(result, 10))), true
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return result, nil
}

func cmdLPush(store *kv.Store, tokens []string) (any, error) {
	return listPush(store, tokens, true)
}

func cmdRPush(store *kv.Store, tokens []string) (any, error) {
	return listPush(store, tokens, false)
}

func listPush(store *kv.Store, tokens []string, front bool) (any, error) {
	if len(tokens) < 3 {
		return nil, errWrongNumArgs("push")
	}
	values := tokens[2:]
	var newLen int
	var typeErr error
	err := store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if exists && v.Kind != kv.KindList {
			typeErr = errWrongType()
			return v, false
		}
		items := append([][]byte{}, v.List...)
		for _, val := range values {
			b := []byte(val)
			if front {
				items = append([][]byte{b}, items...)
			} else {
				items = append(items, b)
			}
		}
		newLen = len(items)
		return kv.ListValue(items), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	return int64(newLen), nil
}

func cmdLPop(store *kv.Store, tokens []string) (any, error) {
	return listPop(store, tokens, true)
}

func cmdRPop(store *kv.Store, tokens []string) (any, error) {
	return listPop(store, tokens, false)
}

func listPop(store *kv.Store, tokens []string, front bool) (any, error) {
	if len(tokens) < 2 || len(tokens) > 3 {
		return nil, errWrongNumArgs("pop")
	}
	count := 1
	hasCount := len(tokens) == 3
	if hasCount {
		n, err := strconv.Atoi(tokens[2])
		if err != nil || n < 0 {
			return nil, errNotInteger()
		}
		count = n
	}

	var popped [][]byte
	var typeErr error
	err := store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if !exists {
			return v, false
		}
		if v.Kind != kv.KindList {
			typeErr = errWrongType()
			return v, false
		}
		items := append([][]byte{}, v.List...)
		n := count
		if n > len(items) {
			n = len(items)
		}
		if front {
			popped = items[:n]
			items = items[n:]
		} else {
			popped = reverseCopy(items[len(items)-n:])
			items = items[:len(items)-n]
		}
		return kv.ListValue(items), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	if len(popped) == 0 {
		if hasCount {
			return []any{}, nil
		}
		return nil, nil
	}
	if !hasCount {
		return popped[0], nil
	}
	out := make([]any, len(popped))
	for i, p := range popped {
		out[i] = p
	}
	return out, nil
}

func cmdLLen(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 2 {
		return nil, errWrongNumArgs("llen")
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return int64(0), nil
	}
	if v.Kind != kv.KindList {
		return nil, errWrongType()
	}
	return int64(len(v.List)), nil
}

func cmdLRange(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 4 {
		return nil, errWrongNumArgs("lrange")
	}
	start, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errNotInteger()
	}
	stop, err := strconv.Atoi(tokens[3])
	if err != nil {
		return nil, errNotInteger()
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return []any{}, nil
	}
	if v.Kind != kv.KindList {
		return nil, errWrongType()
	}
	s, e := clampRange(start, stop, len(v.List))
	if s > e {
		return []any{}, nil
	}
	out := make([]any, 0, e-s+1)
	for _, item := range v.List[s : e+1] {
		out = append(out, item)
	}
	return out, nil
}

func cmdLIndex(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 3 {
		return nil, errWrongNumArgs("lindex")
	}
	idx, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errNotInteger()
	}
	v, ok, err := store.Get(tokens[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if v.Kind != kv.KindList {
		return nil, errWrongType()
	}
	i := normalizeIndex(idx, len(v.List))
	if i < 0 || i >= len(v.List) {
		return nil, nil
	}
	return v.List[i], nil
}

func cmdLSet(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 4 {
		return nil, errWrongNumArgs("lset")
	}
	idx, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errNotInteger()
	}
	var opErr error
	err = store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if !exists {
			opErr = errNoSuchKey()
			return v, false
		}
		if v.Kind != kv.KindList {
			opErr = errWrongType()
			return v, false
		}
		i := normalizeIndex(idx, len(v.List))
		if i < 0 || i >= len(v.List) {
			opErr = &CommandError{Code: "ERR", Message: "index out of range"}
			return v, false
		}
		items := append([][]byte{}, v.List...)
		items[i] = []byte(tokens[3])
		return kv.ListValue(items), true
	})
	if err != nil {
		return nil, err
	}
	if opErr != nil {
		return nil, opErr
	}
	return SimpleString("OK"), nil
}

func cmdLTrim(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 4 {
		return nil, errWrongNumArgs("ltrim")
	}
	start, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errNotInteger()
	}
	stop, err := strconv.Atoi(tokens[3])
	if err != nil {
		return nil, errNotInteger()
	}
	err = store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if !exists {
			return v, false
		}
		if v.Kind != kv.KindList {
			return v, false
		}
		s, e := clampRange(start, stop, len(v.List))
		if s > e {
			return kv.ListValue(nil), true
		}
		return kv.ListValue(append([][]byte{}, v.List[s:e+1]...)), true
	})
	if err != nil {
		return nil, err
	}
	return SimpleString("OK"), nil
}

func cmdLRem(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 4 {
		return nil, errWrongNumArgs("lrem")
	}
	count, err := strconv.Atoi(tokens[2])
	if err != nil {
		return nil, errNotInteger()
	}
	target := tokens[3]
	var removed int64
	var typeErr error
	err = store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if !exists {
			return v, false
		}
		if v.Kind != kv.KindList {
			typeErr = errWrongType()
			return v, false
		}
		items := v.List
		var out [][]byte
		limit := count
		if limit < 0 {
			limit = -limit
		}
		if count >= 0 {
			for _, it := range items {
				if (limit == 0 || removed < int64(limit)) && string(it) == target {
					removed++
					continue
				}
				out = append(out, it)
			}
		} else {
			for i := len(items) - 1; i >= 0; i-- {
				it := items[i]
				if (limit == 0 || removed < int64(limit)) && string(it) == target {
					removed++
					continue
				}
				out = append([][]byte{it}, out...)
			}
		}
		return kv.ListValue(out), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	return removed, nil
}

func cmdLInsert(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 5 {
		return nil, errWrongNumArgs("linsert")
	}
	before := strings.EqualFold(tokens[2], "BEFORE")
	if !before && !strings.EqualFold(tokens[2], "AFTER") {
		return nil, errSyntax()
	}
	pivot, value := tokens[3], tokens[4]

	var newLen int64 = -1
	var typeErr error
	err := store.GetMutable(tokens[1], func(v kv.Value, exists bool) (kv.Value, bool) {
		if !exists {
			newLen = 0
			return v, false
		}
		if v.Kind != kv.KindList {
			typeErr = errWrongType()
			return v, false
		}
		idx := -1
		for i, it := range v.List {
			if string(it) == pivot {
				idx = i
				break
			}
		}
		if idx < 0 {
			newLen = -1
			return v, false
		}
		insertAt := idx
		if !before {
			insertAt = idx + 1
		}
		items := make([][]byte, 0, len(v.List)+1)
		items = append(items, v.List[:insertAt]...)
		items = append(items, []byte(value))
		items = append(items, v.List[insertAt:]...)
		newLen = int64(len(items))
		return kv.ListValue(items), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	return newLen, nil
}

func cmdLMove(store *kv.Store, tokens []string) (any, error) {
	if len(tokens) != 5 {
		return nil, errWrongNumArgs("lmove")
	}
	source, dest := tokens[1], tokens[2]
	fromLeft := strings.EqualFold(tokens[3], "LEFT")
	toLeft := strings.EqualFold(tokens[4], "LEFT")
	if !fromLeft && !strings.EqualFold(tokens[3], "RIGHT") {
		return nil, errSyntax()
	}
	if !toLeft && !strings.EqualFold(tokens[4], "RIGHT") {
		return nil, errSyntax()
	}

	var moved []byte
	var typeErr error
	err := store.GetMutable(source, func(v kv.Value, exists bool) (kv.Value, bool) {
		if !exists {
			return v, false
		}
		if v.Kind != kv.KindList || len(v.List) == 0 {
			if exists && v.Kind != kv.KindList {
				typeErr = errWrongType()
			}
			return v, false
		}
		items := append([][]byte{}, v.List...)
		if fromLeft {
			moved = items[0]
			items = items[1:]
		} else {
			moved = items[len(items)-1]
			items = items[:len(items)-1]
		}
		return kv.ListValue(items), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	if moved == nil {
		return nil, nil
	}

	err = store.GetMutable(dest, func(v kv.Value, exists bool) (kv.Value, bool) {
		if exists && v.Kind != kv.KindList {
			typeErr = errWrongType()
			return v, false
		}
		items := append([][]byte{}, v.List...)
		if toLeft {
			items = append([][]byte{moved}, items...)
		} else {
			items = append(items, moved)
		}
		return kv.ListValue(items), true
	})
	if err != nil {
		return nil, err
	}
	if typeErr != nil {
		return nil, typeErr
	}
	return moved, nil
}

// clampRange converts Redis-style (possibly negative) start/stop indices
// into clamped [0, length) bounds, inclusive on both ends.
func clampRange(start, stop, length int) (int, int) {
	s := normalizeIndex(start, length)
	e := normalizeIndex(stop, length)
	if s < 0 {
		s = 0
	}
	if e >= length {
		e = length - 1
	}
	return s, e
}

func normalizeIndex(i, length int) int {
	if i < 0 {
		return length + i
	}
	return i
}

func reverseCopy(in [][]byte) [][]byte {
	out := make([][]byte, len(in))
	for i, v := range in {
		out[len(in)-1-i] = v
	}
	return out
}
