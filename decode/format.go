package decode

import "fmt"

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}

// dispBase renders `d(b)` — a displacement off a base register, with no
// base register suppressed when the instruction has none.
func dispBase(disp, base int) string {
	return fmt.Sprintf("%d(%d)", disp, base)
}

// dispBaseIndex renders `d(x,b)` for an indexed RX operand.
func dispBaseIndex(disp, index, base int) string {
	return fmt.Sprintf("%d(%d,%d)", disp, index, base)
}

// dispLenBase renders `d(L,b)` for an SS-format length-qualified operand.
func dispLenBase(disp, length, base int) string {
	return fmt.Sprintf("%d(%d,%d)", disp, length, base)
}

func hexImmediate(b byte) string {
	return fmt.Sprintf("X'%02X'", b)
}

func hexImmediate32(v uint32) string {
	return fmt.Sprintf("X'%08X'", v)
}
