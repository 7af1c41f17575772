package vm

// ---------------------------------------------------------------------------
// Property Table Store
//
// Level 1 is a per-context open-addressing directory from table id to a
// bucket table. Level 2 is a separately chained hash table from key to value
// (or tombstone). Each context that writes through a table id lazily gets
// its own bucket table; reads fall through to ancestor contexts.
// ---------------------------------------------------------------------------

// Table names one logical property table. The id is unique process-wide.
type Table struct {
	id  uint32
	ctx *Context // context the table was created in
}

// NewTable allocates a fresh table id owned by ctx. No storage is allocated
// until the table is first written.
func NewTable(ctx *Context) Table {
	if ctx.forked {
		fatalf("table.new", "cannot create a table on forked context %d", ctx.id)
	}
	return Table{id: nextTableID(), ctx: ctx}
}

// ID returns the table's process-wide id.
func (t Table) ID() uint32 { return t.id }

// Context returns the context the table was created in.
func (t Table) Context() *Context { return t.ctx }

// refCounted is implemented by anything a table slot retains on store.
type refCounted interface {
	Retain()
	Release()
}

func retainAny(v any) {
	if r, ok := v.(refCounted); ok {
		r.Retain()
	}
}

func releaseAny(v any) {
	if r, ok := v.(refCounted); ok {
		r.Release()
	}
}

// ---------------------------------------------------------------------------
// Level 2: bucket table
// ---------------------------------------------------------------------------

const minTableCapacity = 4

type slot struct {
	key     *Value
	value   any
	deleted bool // tombstone: the slot exists but holds no binding
	next    *slot
}

type bucketTable struct {
	id       uint32
	capacity int
	size     int // allocated slots, tombstones included
	buckets  []*slot
}

func newBucketTable(id uint32) *bucketTable {
	return &bucketTable{
		id:       id,
		capacity: minTableCapacity,
		buckets:  make([]*slot, minTableCapacity),
	}
}

// hashKey is a polynomial rolling hash (multiplier 31) over the raw key
// bytes: little-endian UTF-16 code units for strings, the little-endian id
// for symbols. The arithmetic is unsigned so the result is never negative.
func hashKey(key *Value) uint32 {
	var h uint32
	switch key.kind {
	case KindString:
		for _, u := range key.str {
			h = h*31 + uint32(u&0xff)
			h = h*31 + uint32(u>>8)
		}
	case KindSymbol:
		id := key.symbol.id
		for i := 0; i < 4; i++ {
			h = h*31 + (id>>(8*i))&0xff
		}
	}
	return h
}

func sameKey(a, b *Value) bool {
	if a == b {
		return true
	}
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindSymbol {
		return a.symbol.id == b.symbol.id
	}
	return equalUnits(a.str, b.str)
}

func checkKey(op string, key *Value) {
	if key == nil || (key.kind != KindString && key.kind != KindSymbol) {
		fatalf(op, "table key must be a string or symbol")
	}
}

// grow doubles the bucket array once more than two slots per bucket are
// allocated, rehashing live and tombstoned slots alike.
func (b *bucketTable) grow() {
	if 2*b.capacity >= b.size {
		return
	}
	old := b.buckets
	b.capacity *= 2
	if b.capacity == 0 {
		b.capacity = minTableCapacity
	}
	b.buckets = make([]*slot, b.capacity)
	for _, s := range old {
		for s != nil {
			next := s.next
			h := hashKey(s.key) % uint32(b.capacity)
			s.next = b.buckets[h]
			b.buckets[h] = s
			s = next
		}
	}
}

func (b *bucketTable) lookup(key *Value) *slot {
	h := hashKey(key) % uint32(b.capacity)
	for s := b.buckets[h]; s != nil; s = s.next {
		if sameKey(s.key, key) {
			return s
		}
	}
	return nil
}

func (b *bucketTable) link(s *slot) {
	h := hashKey(s.key) % uint32(b.capacity)
	s.next = b.buckets[h]
	b.buckets[h] = s
	b.size++
}

// set stores value under key and returns the value it displaced, which the
// caller releases once no table lock is held.
func (b *bucketTable) set(key *Value, value any) (old any) {
	b.grow()
	retainAny(value)
	if s := b.lookup(key); s != nil {
		if !s.deleted {
			old = s.value
		}
		s.value = value
		s.deleted = false
		return old
	}
	key.Retain()
	b.link(&slot{key: key, value: value})
	return nil
}

// del tombstones key and returns the value it displaced, like set. A key
// that was never set still gets a tombstone slot, which counts toward the
// load factor.
func (b *bucketTable) del(key *Value) (old any) {
	b.grow()
	if s := b.lookup(key); s != nil {
		if !s.deleted {
			old = s.value
			s.value = nil
			s.deleted = true
		}
		return old
	}
	key.Retain()
	b.link(&slot{key: key, deleted: true})
	return nil
}

// clear releases every key and live value.
func (b *bucketTable) clear() {
	for i, s := range b.buckets {
		for s != nil {
			next := s.next
			if !s.deleted {
				releaseAny(s.value)
			}
			s.key.Release()
			s = next
		}
		b.buckets[i] = nil
	}
	b.size = 0
}

// ---------------------------------------------------------------------------
// Level 1: per-context directory
// ---------------------------------------------------------------------------

// Directory slots hold arena handles rather than pointers so rehashing never
// aliases a bucket table: 0 is empty, vacated marks a removed entry that
// probes must walk past, n > 0 is arena[n-1].
const vacated int32 = -1

type tableDirectory struct {
	slots []int32
	used  int // occupied + vacated slots
	arena []*bucketTable
	free  []int32
}

func (d *tableDirectory) capacity() int { return len(d.slots) }

func (d *tableDirectory) alloc(b *bucketTable) int32 {
	if n := len(d.free); n > 0 {
		h := d.free[n-1]
		d.free = d.free[:n-1]
		d.arena[h-1] = b
		return h
	}
	d.arena = append(d.arena, b)
	return int32(len(d.arena))
}

func (d *tableDirectory) grow() {
	old := d.slots
	capacity := 2 * len(old)
	if capacity == 0 {
		capacity = minTableCapacity
	}
	d.slots = make([]int32, capacity)
	d.used = 0
	for _, h := range old {
		if h > 0 {
			d.place(h)
		}
	}
}

func (d *tableDirectory) place(h int32) {
	id := d.arena[h-1].id
	n := uint32(len(d.slots))
	for i := uint32(0); i < n; i++ {
		p := (id + i) % n
		if d.slots[p] <= 0 {
			if d.slots[p] == 0 {
				d.used++
			}
			d.slots[p] = h
			return
		}
	}
	fatalf("table.insert", "directory full at capacity %d", n)
}

// insert adds b, growing first when the directory would overflow.
func (d *tableDirectory) insert(b *bucketTable) {
	if d.used+1 > len(d.slots) {
		d.grow()
	}
	d.place(d.alloc(b))
}

func (d *tableDirectory) probe(id uint32) int {
	n := uint32(len(d.slots))
	for i := uint32(0); i < n; i++ {
		p := (id + i) % n
		h := d.slots[p]
		if h == 0 {
			return -1
		}
		if h > 0 && d.arena[h-1].id == id {
			return int(p)
		}
	}
	return -1
}

func (d *tableDirectory) find(id uint32) *bucketTable {
	if p := d.probe(id); p >= 0 {
		return d.arena[d.slots[p]-1]
	}
	return nil
}

func (d *tableDirectory) remove(id uint32) *bucketTable {
	p := d.probe(id)
	if p < 0 {
		return nil
	}
	h := d.slots[p]
	b := d.arena[h-1]
	d.arena[h-1] = nil
	d.free = append(d.free, h)
	d.slots[p] = vacated
	return b
}

func (d *tableDirectory) each(fn func(*bucketTable)) {
	for _, h := range d.slots {
		if h > 0 {
			fn(d.arena[h-1])
		}
	}
}

func (d *tableDirectory) reset() {
	*d = tableDirectory{}
}

// ---------------------------------------------------------------------------
// Context-facing operations
// ---------------------------------------------------------------------------

func (ctx *Context) bucketFor(t Table) *bucketTable {
	b := ctx.tables.find(t.id)
	if b == nil {
		b = newBucketTable(t.id)
		ctx.tables.insert(b)
	}
	return b
}

// TableSet binds key to value in t as seen from ctx. The value is retained
// when it is reference counted.
func (ctx *Context) TableSet(t Table, key *Value, value any) {
	if ctx.forked {
		fatalf("table.set", "cannot set a value on forked context %d", ctx.id)
	}
	checkKey("table.set", key)
	ctx.tablesMu.Lock()
	old := ctx.bucketFor(t).set(key, value)
	ctx.tablesMu.Unlock()
	// Releasing may destroy an object whose own tables live in ctx.
	releaseAny(old)
}

// TableDel tombstones key in t as seen from ctx.
func (ctx *Context) TableDel(t Table, key *Value) {
	if ctx.forked {
		fatalf("table.del", "cannot delete a value on forked context %d", ctx.id)
	}
	checkKey("table.del", key)
	ctx.tablesMu.Lock()
	old := ctx.bucketFor(t).del(key)
	ctx.tablesMu.Unlock()
	releaseAny(old)
}

// TableGet looks key up in t, first in ctx and then in each ancestor
// context. A tombstone hides any binding further up. The returned value is
// borrowed: callers that keep it must retain it.
func (ctx *Context) TableGet(t Table, key *Value) (any, bool) {
	checkKey("table.get", key)
	for c := ctx; c != nil; c = c.parent {
		s, ok := c.tableSlot(t, key)
		if !ok {
			continue
		}
		if s.deleted {
			return nil, false
		}
		return s.value, true
	}
	return nil, false
}

func (ctx *Context) tableSlot(t Table, key *Value) (*slot, bool) {
	ctx.tablesMu.RLock()
	defer ctx.tablesMu.RUnlock()
	b := ctx.tables.find(t.id)
	if b == nil {
		return nil, false
	}
	s := b.lookup(key)
	return s, s != nil
}

// TableDestroy drops ctx's own bucket table for t, releasing its contents.
func (ctx *Context) TableDestroy(t Table) {
	ctx.tablesMu.Lock()
	b := ctx.tables.remove(t.id)
	ctx.tablesMu.Unlock()
	if b != nil {
		b.clear()
	}
}

// DestroyAll drops the bucket table for t in the creating context and in
// every context descended from it.
func (t Table) DestroyAll() {
	if t.ctx == nil {
		return
	}
	t.ctx.walk(func(c *Context) {
		c.TableDestroy(t)
	})
}
