package stream

import "sync"

// opusBuffer is a bounded ring of encoded packets between the encoder
// goroutine and the paced sender.
type opusBuffer struct {
	mu       sync.Mutex
	packets  [][]byte
	readPos  int
	count    int
	closed   bool
	eos      bool
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

func newOpusBuffer(size int) *opusBuffer {
	ob := &opusBuffer{packets: make([][]byte, size)}
	ob.notEmpty = sync.NewCond(&ob.mu)
	ob.notFull = sync.NewCond(&ob.mu)
	return ob
}

// Push blocks while the ring is full. It returns false once the buffer is
// closed or marked finished.
func (ob *opusBuffer) Push(data []byte) bool {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	for ob.count == len(ob.packets) && !ob.closed {
		ob.notFull.Wait()
	}
	if ob.closed || ob.eos {
		return false
	}
	ob.packets[(ob.readPos+ob.count)%len(ob.packets)] = append([]byte(nil), data...)
	ob.count++
	ob.notEmpty.Signal()
	return true
}

// Pop blocks until a packet is available. It returns false when the
// buffer is closed, or drained after MarkEOS.
func (ob *opusBuffer) Pop() ([]byte, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	for ob.count == 0 && !ob.closed && !ob.eos {
		ob.notEmpty.Wait()
	}
	if ob.closed || ob.count == 0 {
		return nil, false
	}
	pkt := ob.packets[ob.readPos]
	ob.packets[ob.readPos] = nil
	ob.readPos = (ob.readPos + 1) % len(ob.packets)
	ob.count--
	ob.notFull.Signal()
	return pkt, true
}

func (ob *opusBuffer) Len() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return ob.count
}

func (ob *opusBuffer) MarkEOS() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.eos = true
	ob.notEmpty.Broadcast()
}

func (ob *opusBuffer) Close() {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	ob.closed = true
	ob.notEmpty.Broadcast()
	ob.notFull.Broadcast()
}
