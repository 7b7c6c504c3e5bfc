package rwlock

// lockWord is the value stored in RWLock.word. It is a small sum type packed
// into one atomic word:
//
//	0                       unlocked
//	(n-1)<<wordShift | 1    held for read by n goroutines, nobody waiting
//	2                       held for write, nobody waiting
//	id<<wordShift | 3       escalated to the lock state with free-list id
type lockWord uint64

type wordKind uint8

const (
	wordUnlocked wordKind = iota
	wordRead
	wordWrite
	wordState
)

const (
	wordTagMask = 0x3
	wordShift   = 2

	// maxReadCount is the largest n-1 the read immediate can hold.
	maxReadCount = ^uint64(0) >> wordShift

	unlockedWord   lockWord = 0
	singleReadWord lockWord = lockWord(wordRead)
	writeWord      lockWord = lockWord(wordWrite)
)

func readWord(readers uint64) lockWord {
	return lockWord((readers-1)<<wordShift | uint64(wordRead))
}

func stateWord(id int) lockWord {
	return lockWord(uint64(id)<<wordShift | uint64(wordState))
}

//go:nosplit
func (w lockWord) kind() wordKind {
	if w == unlockedWord {
		return wordUnlocked
	}
	return wordKind(w & wordTagMask)
}

// readers returns the number of read holders of a read immediate.
//
//go:nosplit
func (w lockWord) readers() uint64 {
	return uint64(w>>wordShift) + 1
}

// slot returns the free-list id of an escalated word.
//
//go:nosplit
func (w lockWord) slot() int {
	return int(w >> wordShift)
}

// uncontended reports whether w is one of the two immediates that a single
// holder can release straight back to unlocked.
//
//go:nosplit
func (w lockWord) uncontended() bool {
	return w == singleReadWord || w == writeWord
}

// addReader returns the read immediate with one more holder.
// ok is false if the count would overflow the reserved bits.
func (w lockWord) addReader() (lockWord, bool) {
	if uint64(w>>wordShift) == maxReadCount {
		return w, false
	}
	return w + 1<<wordShift, true
}

// dropReader returns the read immediate with one less holder.
// w must hold at least two readers.
//
//go:nosplit
func (w lockWord) dropReader() lockWord {
	return w - 1<<wordShift
}
