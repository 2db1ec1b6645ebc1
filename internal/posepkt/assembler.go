package posepkt

// Assembler rebuilds frames from a byte stream fed one byte at a time.
//
// While idle it discards everything except SyncByte. Once a sync byte is
// seen it collects FrameLen bytes and returns them as a candidate frame,
// then goes back to hunting for sync regardless of whether the frame later
// validates. A 0xA5 arriving while idle is always taken as a frame start,
// even if it was really payload of a frame whose sync was lost.
//
// The zero value is ready to use. An Assembler is not safe for concurrent
// use.
type Assembler struct {
	buf    Frame
	cursor int
}

// Feed consumes one byte. It returns the completed frame and true when b
// was the last byte of a frame.
func (a *Assembler) Feed(b byte) (Frame, bool) {
	if a.cursor == 0 {
		if b != SyncByte {
			return Frame{}, false
		}
		a.buf[0] = b
		a.cursor = 1
		return Frame{}, false
	}

	a.buf[a.cursor] = b
	a.cursor++
	if a.cursor < FrameLen {
		return Frame{}, false
	}
	a.cursor = 0
	return a.buf, true
}

// Pending returns how many bytes of the in-progress frame are held.
func (a *Assembler) Pending() int {
	return a.cursor
}

// Reset drops any partially assembled frame.
func (a *Assembler) Reset() {
	a.cursor = 0
}
