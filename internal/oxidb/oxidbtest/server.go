// Package oxidbtest runs an in-process server that speaks the oxidb wire
// protocol, backed by memory. It understands the subset of commands the
// client issues: equality queries on dotted paths, single-key sorts, unique
// indexes, per-connection transactions and object buckets.
package oxidbtest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type object struct {
	data        string
	contentType string
	metadata    map[string]any
}

type op struct {
	cmd        string
	collection string
	req        map[string]any
}

// Server is a fake oxidb-server. The zero value is not usable; call Start.
type Server struct {
	ln net.Listener

	mu       sync.Mutex
	nextID   float64
	colls    map[string][]map[string]any
	unique   map[string]map[string]bool
	buckets  map[string]map[string]object
	failures map[string]string
	stall    map[string]time.Duration
	calls    map[string]int
	conns    map[net.Conn]struct{}

	wg sync.WaitGroup
}

// Start listens on a random loopback port until the test ends.
func Start(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("oxidbtest: listen: %v", err)
	}
	s := &Server{
		ln:       ln,
		colls:    map[string][]map[string]any{},
		unique:   map[string]map[string]bool{},
		buckets:  map[string]map[string]object{},
		failures: map[string]string{},
		stall:    map[string]time.Duration{},
		calls:    map[string]int{},
		conns:    map[net.Conn]struct{}{},
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Host returns the listener host.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.ln.Addr().String())
	return host
}

// Port returns the listener port.
func (s *Server) Port() int {
	_, port, _ := net.SplitHostPort(s.ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Close stops accepting connections and drops the open ones.
func (s *Server) Close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// FailNext makes the next call of cmd answer with an error message.
func (s *Server) FailNext(cmd, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[cmd] = msg
}

// Stall delays every answer to cmd by d.
func (s *Server) Stall(cmd string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stall[cmd] = d
}

// Calls reports how many times cmd was received.
func (s *Server) Calls(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[cmd]
}

// Docs returns a snapshot of a collection.
func (s *Server) Docs(collection string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.colls[collection]))
	for _, d := range s.colls[collection] {
		out = append(out, clone(d))
	}
	return out
}

// Object reports whether bucket holds key.
func (s *Server) Object(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.buckets[bucket][key]
	return ok
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	var tx []op
	inTx := false
	for {
		req, err := readFrame(conn)
		if err != nil {
			return
		}
		cmd, _ := req["cmd"].(string)

		s.mu.Lock()
		s.calls[cmd]++
		failMsg, fail := s.failures[cmd]
		delete(s.failures, cmd)
		delay := s.stall[cmd]
		s.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		var resp map[string]any
		switch {
		case fail:
			resp = errResp(failMsg)
		case cmd == "begin_tx":
			inTx, tx = true, nil
			resp = okResp(map[string]any{"tx_id": 1})
		case cmd == "rollback_tx":
			inTx, tx = false, nil
			resp = okResp("rolled back")
		case cmd == "commit_tx":
			resp = s.commit(tx)
			inTx, tx = false, nil
		case inTx && isWrite(cmd):
			coll, _ := req["collection"].(string)
			tx = append(tx, op{cmd: cmd, collection: coll, req: req})
			resp = okResp("buffered")
		default:
			s.mu.Lock()
			data, err := s.exec(cmd, req)
			s.mu.Unlock()
			if err != nil {
				resp = errResp(err.Error())
			} else {
				resp = okResp(data)
			}
		}
		if err := writeFrame(conn, resp); err != nil {
			return
		}
	}
}

func isWrite(cmd string) bool {
	switch cmd {
	case "insert", "update_one", "delete", "delete_one":
		return true
	}
	return false
}

// commit applies buffered writes atomically: on any failure the store is
// left untouched.
func (s *Server) commit(tx []op) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := make(map[string][]map[string]any, len(s.colls))
	for k, docs := range s.colls {
		saved[k] = append([]map[string]any(nil), docs...)
	}
	savedID := s.nextID
	for _, o := range tx {
		if _, err := s.exec(o.cmd, o.req); err != nil {
			s.colls, s.nextID = saved, savedID
			return errResp(err.Error())
		}
	}
	return okResp("committed")
}

func (s *Server) exec(cmd string, req map[string]any) (any, error) {
	coll, _ := req["collection"].(string)
	query, _ := req["query"].(map[string]any)
	switch cmd {
	case "ping":
		return "pong", nil
	case "create_collection":
		if _, ok := s.colls[coll]; ok {
			return nil, fmt.Errorf("collection %s already exists", coll)
		}
		s.colls[coll] = nil
		return "ok", nil
	case "drop_collection":
		delete(s.colls, coll)
		return "ok", nil
	case "create_index":
		return "ok", nil
	case "create_unique_index":
		field, _ := req["field"].(string)
		if s.unique[coll] == nil {
			s.unique[coll] = map[string]bool{}
		}
		s.unique[coll][field] = true
		return "ok", nil
	case "insert":
		doc, _ := req["doc"].(map[string]any)
		doc = clone(doc)
		if err := s.checkUnique(coll, doc, nil); err != nil {
			return nil, err
		}
		s.nextID++
		doc["_id"] = s.nextID
		s.colls[coll] = append(s.colls[coll], doc)
		return map[string]any{"id": s.nextID}, nil
	case "find":
		docs := s.match(coll, query)
		if spec, ok := req["sort"].(map[string]any); ok {
			sortDocs(docs, spec)
		}
		if skip, ok := req["skip"].(float64); ok {
			docs = docs[min(int(skip), len(docs)):]
		}
		if limit, ok := req["limit"].(float64); ok && int(limit) < len(docs) {
			docs = docs[:int(limit)]
		}
		out := make([]any, len(docs))
		for i, d := range docs {
			out[i] = clone(d)
		}
		return out, nil
	case "find_one":
		docs := s.match(coll, query)
		if len(docs) == 0 {
			return nil, nil
		}
		return clone(docs[0]), nil
	case "count":
		return map[string]any{"count": float64(len(s.match(coll, query)))}, nil
	case "update_one":
		update, _ := req["update"].(map[string]any)
		set, _ := update["$set"].(map[string]any)
		for i, d := range s.colls[coll] {
			if !matches(d, query) {
				continue
			}
			next := clone(d)
			for k, v := range set {
				next[k] = v
			}
			if err := s.checkUnique(coll, next, d); err != nil {
				return nil, err
			}
			s.colls[coll][i] = next
			return map[string]any{"modified": float64(1)}, nil
		}
		return map[string]any{"modified": float64(0)}, nil
	case "delete", "delete_one":
		kept := s.colls[coll][:0:0]
		deleted := 0
		for _, d := range s.colls[coll] {
			if matches(d, query) && (cmd == "delete" || deleted == 0) {
				deleted++
				continue
			}
			kept = append(kept, d)
		}
		s.colls[coll] = kept
		return map[string]any{"deleted": float64(deleted)}, nil
	case "create_bucket":
		bucket, _ := req["bucket"].(string)
		if _, ok := s.buckets[bucket]; ok {
			return nil, fmt.Errorf("bucket %s already exists", bucket)
		}
		s.buckets[bucket] = map[string]object{}
		return "ok", nil
	case "put_object":
		bucket, _ := req["bucket"].(string)
		key, _ := req["key"].(string)
		b, ok := s.buckets[bucket]
		if !ok {
			return nil, fmt.Errorf("bucket %s not found", bucket)
		}
		data, _ := req["data"].(string)
		if _, err := base64.StdEncoding.DecodeString(data); err != nil {
			return nil, fmt.Errorf("invalid base64")
		}
		ct, _ := req["content_type"].(string)
		meta, _ := req["metadata"].(map[string]any)
		b[key] = object{data: data, contentType: ct, metadata: meta}
		return map[string]any{"key": key}, nil
	case "get_object":
		bucket, _ := req["bucket"].(string)
		key, _ := req["key"].(string)
		obj, ok := s.buckets[bucket][key]
		if !ok {
			return nil, fmt.Errorf("object %s not found", key)
		}
		return map[string]any{"content": obj.data, "content_type": obj.contentType, "metadata": obj.metadata}, nil
	case "delete_object":
		bucket, _ := req["bucket"].(string)
		key, _ := req["key"].(string)
		if _, ok := s.buckets[bucket][key]; !ok {
			return nil, fmt.Errorf("object %s not found", key)
		}
		delete(s.buckets[bucket], key)
		return "ok", nil
	}
	return nil, fmt.Errorf("unknown command: %s", cmd)
}

func (s *Server) checkUnique(coll string, doc, self map[string]any) error {
	for field := range s.unique[coll] {
		v, ok := doc[field]
		if !ok {
			continue
		}
		for _, other := range s.colls[coll] {
			if self != nil && reflect.DeepEqual(other["_id"], self["_id"]) {
				continue
			}
			if reflect.DeepEqual(other[field], v) {
				return fmt.Errorf("unique constraint violated on %s.%s", coll, field)
			}
		}
	}
	return nil
}

func (s *Server) match(coll string, query map[string]any) []map[string]any {
	var out []map[string]any
	for _, d := range s.colls[coll] {
		if matches(d, query) {
			out = append(out, d)
		}
	}
	return out
}

func matches(doc, query map[string]any) bool {
	for k, want := range query {
		if !reflect.DeepEqual(lookup(doc, k), want) {
			return false
		}
	}
	return true
}

// lookup resolves a dotted path into nested documents.
func lookup(doc map[string]any, path string) any {
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func sortDocs(docs []map[string]any, spec map[string]any) {
	for field, dir := range spec {
		desc := false
		if n, ok := dir.(float64); ok && n < 0 {
			desc = true
		}
		sort.SliceStable(docs, func(i, j int) bool {
			a, b := fmt.Sprint(docs[i][field]), fmt.Sprint(docs[j][field])
			if desc {
				return strings.Compare(a, b) > 0
			}
			return strings.Compare(a, b) < 0
		})
	}
}

func clone(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func okResp(data any) map[string]any { return map[string]any{"ok": true, "data": data} }

func errResp(msg string) map[string]any { return map[string]any{"ok": false, "error": msg} }

func readFrame(r io.Reader) (map[string]any, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	buf := make([]byte, binary.LittleEndian.Uint32(lenBuf[:]))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var req map[string]any
	if err := json.Unmarshal(buf, &req); err != nil {
		return nil, err
	}
	return req, nil
}

func writeFrame(w io.Writer, resp map[string]any) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	frame := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)
	_, err = w.Write(frame)
	return err
}
