// internal/radio/mock.go
package radio

import "sync"

// Mock is an in-memory Device. Bytes written by one Mock on a Bus are
// queued on every other attached Mock that is in receive mode.
type Mock struct {
	mu    sync.Mutex
	bus   *Bus
	mode  Mode
	rx    []byte
	txLog [][]byte
	modes []Mode
}

func NewMock() *Mock { return &Mock{} }

func (d *Mock) SetMode(m Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
	d.modes = append(d.modes, m)
	return nil
}

func (d *Mock) Read(max int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.rx) == 0 || max <= 0 {
		return nil, nil
	}
	n := max
	if n > len(d.rx) {
		n = len(d.rx)
	}
	out := make([]byte, n)
	copy(out, d.rx[:n])
	d.rx = d.rx[n:]
	return out, nil
}

func (d *Mock) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)

	d.mu.Lock()
	d.txLog = append(d.txLog, cp)
	bus := d.bus
	d.mu.Unlock()

	if bus != nil {
		bus.deliver(d, cp)
	}
	return len(b), nil
}

// InjectRx queues bytes for the next reads.
func (d *Mock) InjectRx(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rx = append(d.rx, b...)
}

// TxLog returns a copy of every write.
func (d *Mock) TxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([][]byte, len(d.txLog))
	for i, b := range d.txLog {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

func (d *Mock) ClearTxLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txLog = d.txLog[:0]
}

// Modes returns every mode change in order.
func (d *Mock) Modes() []Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Mode(nil), d.modes...)
}

// ---- bus ----

// Bus is a shared broadcast medium for Mocks.
type Bus struct {
	mu    sync.Mutex
	nodes []*Mock
	cut   map[[2]*Mock]bool
}

func NewBus() *Bus { return &Bus{cut: make(map[[2]*Mock]bool)} }

// Attach creates a Mock connected to the bus.
func (b *Bus) Attach() *Mock {
	m := &Mock{bus: b}
	b.mu.Lock()
	b.nodes = append(b.nodes, m)
	b.mu.Unlock()
	return m
}

// Cut stops traffic between a and c in both directions.
func (b *Bus) Cut(a, c *Mock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cut[[2]*Mock{a, c}] = true
	b.cut[[2]*Mock{c, a}] = true
}

func (b *Bus) deliver(from *Mock, data []byte) {
	b.mu.Lock()
	nodes := append([]*Mock(nil), b.nodes...)
	b.mu.Unlock()

	for _, n := range nodes {
		if n == from {
			continue
		}
		b.mu.Lock()
		blocked := b.cut[[2]*Mock{from, n}]
		b.mu.Unlock()
		if blocked {
			continue
		}

		n.mu.Lock()
		if n.mode == ModeReceive {
			n.rx = append(n.rx, data...)
		}
		n.mu.Unlock()
	}
}
