// Package sqlstore is a blob-backed Pager: the same static B+-tree
// internal/pager/memory builds in process, persisted as rows in a
// SQLite database opened through database/sql, in the style of
// db_manager.go's single-purpose DBConn wrapper (open, ping, configure
// the pool, expose query/exec helpers against one *sql.DB) but scoped
// to one page-store schema instead of a general connection registry.
package sqlstore

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bmuratshin/sfcindex/internal/pager"
)

const keyWidth = 32 // bytes; wide enough for the 256-bit Z-8D key

// Entry is one (key, row locator) pair to be indexed, identical in
// shape to internal/pager/memory's Entry.
type Entry struct {
	Key     *big.Int
	Locator pager.RowLocator
}

const schema = `
CREATE TABLE IF NOT EXISTS sfc_indexes (
	name      TEXT PRIMARY KEY,
	root_page INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sfc_pages (
	id            INTEGER PRIMARY KEY,
	is_leaf       INTEGER NOT NULL,
	right_sibling INTEGER NOT NULL,
	keys          BLOB NOT NULL,
	payload       BLOB NOT NULL
);
`

// Store is a Pager backed by a single SQLite database file (or
// in-memory database, for ":memory:" dsn). One Store may hold several
// named indexes, each with its own root page.
type Store struct {
	db     *sql.DB
	dsn    string
	pinned int64 // atomic; mirrors memory.Store's PinnedCount for parity
}

// Open connects to the SQLite database at dsn (a file path, or
// "file::memory:?cache=shared" for a throwaway in-process instance),
// pings it, configures the pool the way DBConn does, and ensures the
// page-store schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlstore: schema: %w", err)
	}
	return &Store{db: db, dsn: dsn}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Build constructs and persists indexName's tree into s, as Build does
// against a raw *sql.DB.
func (s *Store) Build(indexName string, entries []Entry, fanout int) error {
	return Build(s.db, indexName, entries, fanout)
}

// Build constructs a static B+-tree from entries (sorted here by key),
// exactly as internal/pager/memory.New does, then persists every page
// as one row in sfc_pages within a single transaction, committing the
// root under indexName in sfc_indexes. fanout bounds both leaf slot
// count and internal child count; it must be >= 2.
func Build(db *sql.DB, indexName string, entries []Entry, fanout int) error {
	if fanout < 2 {
		fanout = 2
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key.Cmp(sorted[j].Key) < 0 })

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("sqlstore: begin: %w", err)
	}
	defer tx.Rollback()

	var nextID int64 = 1
	type builtLeaf struct {
		id    int64
		keys  []*big.Int
		locs  []pager.RowLocator
		right int64
	}
	type builtInternal struct {
		id       int64
		keys     []*big.Int
		children []int64
		right    int64
	}

	insertLeaf := func(l *builtLeaf) error {
		keysBlob := make([]byte, keyWidth*len(l.keys))
		for i, k := range l.keys {
			k.FillBytes(keysBlob[i*keyWidth : (i+1)*keyWidth])
		}
		payload := make([]byte, 10*len(l.locs))
		for i, loc := range l.locs {
			binary.BigEndian.PutUint32(payload[i*10:], loc.BlockIDHi)
			binary.BigEndian.PutUint32(payload[i*10+4:], loc.BlockIDLo)
			binary.BigEndian.PutUint16(payload[i*10+8:], loc.Slot)
		}
		_, err := tx.Exec(`INSERT INTO sfc_pages (id, is_leaf, right_sibling, keys, payload) VALUES (?, 1, ?, ?, ?)`,
			l.id, l.right, keysBlob, payload)
		return err
	}
	insertInternal := func(n *builtInternal) error {
		keysBlob := make([]byte, keyWidth*len(n.keys))
		for i, k := range n.keys {
			k.FillBytes(keysBlob[i*keyWidth : (i+1)*keyWidth])
		}
		payload := make([]byte, 8*len(n.children))
		for i, c := range n.children {
			binary.BigEndian.PutUint64(payload[i*8:], uint64(c))
		}
		_, err := tx.Exec(`INSERT INTO sfc_pages (id, is_leaf, right_sibling, keys, payload) VALUES (?, 0, ?, ?, ?)`,
			n.id, n.right, keysBlob, payload)
		return err
	}

	if len(sorted) == 0 {
		root := &builtLeaf{id: nextID}
		nextID++
		if err := insertLeaf(root); err != nil {
			return err
		}
		if _, err := tx.Exec(`INSERT OR REPLACE INTO sfc_indexes (name, root_page) VALUES (?, ?)`, indexName, root.id); err != nil {
			return err
		}
		return tx.Commit()
	}

	type builtPage struct {
		id       int64
		firstKey *big.Int
		leaf     *builtLeaf
		internal *builtInternal
	}
	var level []builtPage
	for i := 0; i < len(sorted); i += fanout {
		end := i + fanout
		if end > len(sorted) {
			end = len(sorted)
		}
		l := &builtLeaf{id: nextID}
		nextID++
		for _, e := range sorted[i:end] {
			l.keys = append(l.keys, e.Key)
			l.locs = append(l.locs, e.Locator)
		}
		level = append(level, builtPage{id: l.id, firstKey: l.keys[0], leaf: l})
	}
	for i := 1; i < len(level); i++ {
		level[i-1].leaf.right = level[i].id
	}
	for _, p := range level {
		if err := insertLeaf(p.leaf); err != nil {
			return err
		}
	}

	for len(level) > 1 {
		var next []builtPage
		for i := 0; i < len(level); i += fanout {
			end := i + fanout
			if end > len(level) {
				end = len(level)
			}
			n := &builtInternal{id: nextID}
			nextID++
			for _, child := range level[i:end] {
				n.keys = append(n.keys, child.firstKey)
				n.children = append(n.children, child.id)
			}
			next = append(next, builtPage{id: n.id, firstKey: n.keys[0], internal: n})
		}
		for i := 1; i < len(next); i++ {
			next[i-1].internal.right = next[i].id
		}
		for _, p := range next {
			if err := insertInternal(p.internal); err != nil {
				return err
			}
		}
		level = next
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO sfc_indexes (name, root_page) VALUES (?, ?)`, indexName, level[0].id); err != nil {
		return err
	}
	return tx.Commit()
}

type sqlPage struct {
	id       pager.PageID
	isLeaf   bool
	right    pager.PageID
	keys     []*big.Int
	locs     []pager.RowLocator
	children []pager.PageID
}

func (p *sqlPage) ID() pager.PageID        { return p.id }
func (p *sqlPage) IsLeaf() bool            { return p.isLeaf }
func (p *sqlPage) Len() int                { return len(p.keys) }
func (p *sqlPage) KeyAt(i int) *big.Int    { return p.keys[i] }
func (p *sqlPage) RightSibling() pager.PageID { return p.right }

func (p *sqlPage) LocatorAt(i int) pager.RowLocator {
	if !p.isLeaf {
		panic("sqlstore: LocatorAt on internal page")
	}
	return p.locs[i]
}

func (p *sqlPage) ChildAt(i int) pager.PageID {
	if p.isLeaf {
		panic("sqlstore: ChildAt on leaf page")
	}
	return p.children[i]
}

// Open resolves name to its root page via sfc_indexes.
func (s *Store) Open(name string) (pager.PageID, error) {
	var root int64
	err := s.db.QueryRow(`SELECT root_page FROM sfc_indexes WHERE name = ?`, name).Scan(&root)
	if err == sql.ErrNoRows {
		return pager.NoPage, &pager.NotFoundError{Name: name}
	}
	if err != nil {
		return pager.NoPage, &StoreError{Op: "Open", Msg: err.Error()}
	}
	return pager.PageID(root), nil
}

// Pin fetches one page row and decodes its key/payload blobs.
func (s *Store) Pin(id pager.PageID) (pager.Page, error) {
	var isLeaf int
	var right int64
	var keysBlob, payload []byte
	err := s.db.QueryRow(`SELECT is_leaf, right_sibling, keys, payload FROM sfc_pages WHERE id = ?`, int64(id)).
		Scan(&isLeaf, &right, &keysBlob, &payload)
	if err == sql.ErrNoRows {
		return nil, &StoreError{Op: "Pin", Msg: "no such page"}
	}
	if err != nil {
		return nil, &StoreError{Op: "Pin", Msg: err.Error()}
	}

	n := len(keysBlob) / keyWidth
	p := &sqlPage{id: id, isLeaf: isLeaf != 0, right: pager.PageID(right), keys: make([]*big.Int, n)}
	for i := 0; i < n; i++ {
		p.keys[i] = new(big.Int).SetBytes(keysBlob[i*keyWidth : (i+1)*keyWidth])
	}
	if p.isLeaf {
		p.locs = make([]pager.RowLocator, n)
		for i := 0; i < n; i++ {
			off := i * 10
			p.locs[i] = pager.RowLocator{
				BlockIDHi: binary.BigEndian.Uint32(payload[off:]),
				BlockIDLo: binary.BigEndian.Uint32(payload[off+4:]),
				Slot:      binary.BigEndian.Uint16(payload[off+8:]),
			}
		}
	} else {
		p.children = make([]pager.PageID, n)
		for i := 0; i < n; i++ {
			p.children[i] = pager.PageID(binary.BigEndian.Uint64(payload[i*8:]))
		}
	}

	atomic.AddInt64(&s.pinned, 1)
	return p, nil
}

// Unpin releases the pin counted by Pin. The blob store has nothing to
// unlock, since every Pin already read a fully independent snapshot;
// this only keeps the pin/unpin balance instrumentation honest.
func (s *Store) Unpin(pager.PageID) {
	atomic.AddInt64(&s.pinned, -1)
}

// PinnedCount reports the outstanding Pin/Unpin balance, for the same
// at-most-one-pin assertions internal/pager/memory's tests make.
func (s *Store) PinnedCount() int {
	return int(atomic.LoadInt64(&s.pinned))
}

// StoreError reports a problem resolving a name or page within a Store.
type StoreError struct {
	Op  string
	Msg string
}

func (e *StoreError) Error() string { return "pager/sqlstore: " + e.Op + ": " + e.Msg }
