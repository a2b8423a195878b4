package certificate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
)

const (
	minSequenceDigits  = 3
	maxProgramCodeSize = 6
	fallbackProgram    = "GEN"
)

var romanMonths = [...]string{"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X", "XI", "XII"}

// RomanMonth returns the roman numeral of the month (I to XII).
func RomanMonth(m time.Month) string {
	if m < time.January || m > time.December {
		return ""
	}
	return romanMonths[m-1]
}

// ParseSequence extracts the sequence number from a verification ID:
// the leading digits (at least 3) of the segment before the first "/".
func ParseSequence(vid string) (int, bool) {
	seg := vid
	if i := strings.IndexByte(vid, '/'); i >= 0 {
		seg = vid[:i]
	}
	end := 0
	for end < len(seg) && seg[end] >= '0' && seg[end] <= '9' {
		end++
	}
	if end < minSequenceDigits {
		return 0, false
	}
	n, err := strconv.Atoi(seg[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxSequence returns the highest sequence found in vids, 0 when none parses.
func MaxSequence(vids []string) int {
	var max int
	for _, vid := range vids {
		if n, ok := ParseSequence(vid); ok && n > max {
			max = n
		}
	}
	return max
}

// FormatVerificationID renders NNN/PROGRAM/PARTITION/MONTH/YEAR, e.g. 007/BE/FT/X/2025.
func FormatVerificationID(seq int, programCode, partitionCode string, issued time.Time) string {
	return fmt.Sprintf("%03d/%s/%s/%s/%d", seq, programCode, partitionCode, RomanMonth(issued.Month()), issued.Year())
}

// ProgramCode derives a program code from the initials of the program name.
func ProgramCode(programName string) string {
	words := strings.FieldsFunc(programName, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for _, w := range words {
		r := []rune(w)[0]
		if r > unicode.MaxASCII {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
		if b.Len() == maxProgramCodeSize {
			break
		}
	}
	if b.Len() == 0 {
		return fallbackProgram
	}
	return b.String()
}

// Sequencer is an atomic, storage-backed counter per partition.
type Sequencer interface {
	// NextSequence stores and returns max(stored, floor) + 1.
	NextSequence(ctx context.Context, partitionID string, floor int) (int, error)
	// ReleaseSequence decrements the stored value only if it still equals value.
	ReleaseSequence(ctx context.Context, partitionID string, value int) (bool, error)
}

// Allocator hands out certificate numbers for one reconciliation run.
// It is seeded with the highest sequence among the partition's verification IDs.
type Allocator struct {
	seq         Sequencer
	partitionID string
	floor       int
}

func NewAllocator(seq Sequencer, partitionID string, existingIDs []string) *Allocator {
	return &Allocator{
		seq:         seq,
		partitionID: partitionID,
		floor:       MaxSequence(existingIDs),
	}
}

// Next returns the next certificate number.
func (a *Allocator) Next(ctx context.Context) (int, error) {
	n, err := a.seq.NextSequence(ctx, a.partitionID, a.floor)
	if err != nil {
		return 0, errors.Wrap(err, "allocating certificate number")
	}
	a.floor = n
	return n, nil
}

// Release gives back a number that was never persisted, when nothing was allocated after it.
func (a *Allocator) Release(ctx context.Context, n int) error {
	ok, err := a.seq.ReleaseSequence(ctx, a.partitionID, n)
	if err != nil {
		return errors.Wrap(err, "releasing certificate number")
	}
	if ok && a.floor == n {
		a.floor = n - 1
	}
	return nil
}
