package fixedts

import (
	"errors"
	"strings"

	"github.com/imarsman/fixedts/pkg/utility"
	"lab.nexedi.com/kirr/go123/xfmt"
)

// ErrMalformedInput is the single kind of parse failure. Every error returned
// by the parser matches it with errors.Is.
var ErrMalformedInput = errors.New("malformed input")

// ParseError describes where an input stopped matching the layout
type ParseError struct {
	Input  string // the input as given
	Pos    int    // byte offset of the failure
	Reason string // what was expected at Pos
}

func (e *ParseError) Error() string {
	// Avoid allocations that would occur with fmt.Sprintf
	xfmtBuf := new(xfmt.Buffer)
	xfmtBuf.S("fixedts: malformed input ").C('"').S(e.Input).C('"').S(" at position ").D(e.Pos).S(": ").S(e.Reason)

	return utility.BytesToString(xfmtBuf.Bytes()...)
}

// Unwrap lets errors.Is(err, ErrMalformedInput) match
func (e *ParseError) Unwrap() error {
	return ErrMalformedInput
}

func malformed(in string, pos int, reason string) error {
	return &ParseError{Input: in, Pos: pos, Reason: reason}
}

// RoundingPolicy decides what a 10th fractional digit does to the 9th
type RoundingPolicy int

const (
	// RoundNinthDigit increments the 9th fraction character when the 10th
	// digit is 5 or more. There is no carry: a 9th digit of 9 becomes a
	// non-digit, which ends the decimal fraction at the 8th place.
	RoundNinthDigit RoundingPolicy = iota
	// TruncateAfterNinthDigit ignores everything after the 9th digit.
	TruncateAfterNinthDigit
	// RoundNinthDigitCarry rounds half up numerically, carrying into the
	// higher places and saturating at 999999999 ns.
	RoundNinthDigitCarry
)

var roundingPolicyNames = map[RoundingPolicy]string{
	RoundNinthDigit:         "round",
	TruncateAfterNinthDigit: "truncate",
	RoundNinthDigitCarry:    "carry",
}

func (p RoundingPolicy) String() string {
	if name, ok := roundingPolicyNames[p]; ok {
		return name
	}
	return "unknown"
}

// ParseRoundingPolicy get a policy from its name (round, truncate, carry)
func ParseRoundingPolicy(name string) (RoundingPolicy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for p, n := range roundingPolicyNames {
		if n == name {
			return p, nil
		}
	}

	xfmtBuf := new(xfmt.Buffer)
	xfmtBuf.S("fixedts: unknown rounding policy ").C('"').S(name).C('"')

	return RoundNinthDigit, errors.New(utility.BytesToString(xfmtBuf.Bytes()...))
}

// Layout positions. The prefix is fixed width; everything after it is
// located relative to the last digit consumed.
const (
	prefixLength      int = 19 // YYYY-MM-DD?HH:MM:SS
	fractionMarkPos   int = 19 // '.' or ','
	fractionStart     int = 20 // first fraction digit
	fractionPlaces    int = 9  // nanosecond resolution
	fractionMaxDigits int = 10 // 9 places plus one rounding digit
)

// Expected content of each prefix position. 'd' is any digit and 'T' is the
// date/time separator, which may be 'T' or a space.
var prefixLayout = [prefixLength]byte{
	'd', 'd', 'd', 'd', '-', 'd', 'd', '-', 'd', 'd',
	'T',
	'd', 'd', ':', 'd', 'd', ':', 'd', 'd',
}

// Parser parses the fixed layout
//   YYYY-MM-DD(T| )HH:MM:SS[(.|,)digits][Z|z|(+|-)(D|DD[:?MM])]
//
// The zero value rounds with RoundNinthDigit and has no length limit. A
// Parser holds no state between calls and is safe for concurrent use.
type Parser struct {
	Rounding  RoundingPolicy // applied when a 10th fraction digit is present
	MaxLength int            // reject longer input when > 0
}

// DefaultParser is used by Parse and ParseInto
var DefaultParser = Parser{Rounding: RoundNinthDigit}

// Parse parse timeStr with DefaultParser
func Parse(timeStr string) (Timestamp, error) {
	return DefaultParser.Parse(timeStr)
}

// ParseInto parse timeStr with DefaultParser, populating ts in place
func ParseInto(timeStr string, ts *Timestamp) error {
	return DefaultParser.ParseInto(timeStr, ts)
}

// Parse parse timeStr into a new Timestamp
func (p Parser) Parse(timeStr string) (ts Timestamp, err error) {
	err = p.ParseInto(timeStr, &ts)
	return
}

// ParseInto parse timeStr and populate ts in place. ts is reset first so
// fields not present in the input are zero. On error the contents of ts are
// unspecified and should not be used.
//
// Content after a Z designator or after a parsed offset is not inspected.
func (p Parser) ParseInto(timeStr string, ts *Timestamp) (err error) {
	*ts = Timestamp{}

	timeStrLength := len(timeStr)
	if p.MaxLength > 0 && timeStrLength > p.MaxLength {
		xfmtBuf := new(xfmt.Buffer)
		xfmtBuf.S("length ").D(timeStrLength).S(" is > max of ").D(p.MaxLength)

		return malformed(timeStr, p.MaxLength, utility.BytesToString(xfmtBuf.Bytes()...))
	}

	// Validate every fixed position before extracting anything
	for i := 0; i < prefixLength; i++ {
		if i >= timeStrLength {
			return malformed(timeStr, i, "input ends before seconds")
		}
		c := timeStr[i]
		switch prefixLayout[i] {
		case 'd':
			if !utility.IsDigit(c) {
				return malformed(timeStr, i, "expected digit")
			}
		case 'T':
			if c != 'T' && c != ' ' {
				return malformed(timeStr, i, "expected 'T' or space between date and time")
			}
		default:
			if c != prefixLayout[i] {
				xfmtBuf := new(xfmt.Buffer)
				xfmtBuf.S("expected ").C('\'').C(rune(prefixLayout[i])).C('\'')

				return malformed(timeStr, i, utility.BytesToString(xfmtBuf.Bytes()...))
			}
		}
	}

	// The atoi2 and atoi4 calls below are safe to use since the positions
	// have been verified above.
	if ts.Year, err = atoi4(timeStr[0:4]); err != nil {
		return malformed(timeStr, 0, err.Error())
	}
	if ts.Month, err = atoi2(timeStr[5:7]); err != nil {
		return malformed(timeStr, 5, err.Error())
	}
	if ts.Day, err = atoi2(timeStr[8:10]); err != nil {
		return malformed(timeStr, 8, err.Error())
	}
	if ts.Hour, err = atoi2(timeStr[11:13]); err != nil {
		return malformed(timeStr, 11, err.Error())
	}
	if ts.Minute, err = atoi2(timeStr[14:16]); err != nil {
		return malformed(timeStr, 14, err.Error())
	}
	if ts.Second, err = atoi2(timeStr[17:19]); err != nil {
		return malformed(timeStr, 17, err.Error())
	}

	// Index just past the last consumed digit
	next := prefixLength

	// Fractional seconds
	if next < timeStrLength && (timeStr[fractionMarkPos] == '.' || timeStr[fractionMarkPos] == ',') {
		run := utility.DigitRun(timeStr, fractionStart)
		if run == 0 {
			return malformed(timeStr, fractionStart, "fractional seconds marker not followed by a digit")
		}
		// Digits past the 10th only locate the end of the fraction
		significant := run
		if significant > fractionMaxDigits {
			significant = fractionMaxDigits
		}
		ts.Nanosecond = p.Rounding.nanoseconds(timeStr[fractionStart : fractionStart+significant])
		next = fractionStart + run
	}

	// No zone at all is valid
	if next >= timeStrLength {
		return nil
	}

	switch timeStr[next] {
	case 'Z', 'z':
		// Nothing after Z is looked at
		ts.IsUTC = true
	case '+', '-':
		parseOffset(timeStr, next, ts)
	}

	return nil
}

// parseOffset read an offset whose sign is at signPos. Input that does not
// start with an hour digit leaves ts without an offset.
func parseOffset(timeStr string, signPos int, ts *Timestamp) {
	i := signPos + 1
	offsetSec := 0

	switch {
	// Hour only (single digit)
	case digitAt(timeStr, i) && i+1 == len(timeStr):
		offsetSec = int(timeStr[i]-'0') * 60 * 60
	// Hours, maybe minutes
	case digitAt(timeStr, i) && digitAt(timeStr, i+1):
		offsetH, _ := atoi2(timeStr[i : i+2])
		offsetSec = offsetH * 60 * 60

		i += 2
		if i < len(timeStr) && timeStr[i] == ':' {
			i++
		}
		// Minutes are optional and anything else is left alone
		if digitAt(timeStr, i) && digitAt(timeStr, i+1) {
			offsetM, _ := atoi2(timeStr[i : i+2])
			offsetSec += offsetM * 60
		}
	default:
		return
	}

	if timeStr[signPos] == '-' {
		offsetSec = -offsetSec
	}

	ts.OffsetSeconds = offsetSec
	ts.HasOffset = true
}

// nanoseconds get the nanosecond value of up to 10 fraction digits. The
// first 9 digits are the fraction places, the 10th is only used to round.
func (p RoundingPolicy) nanoseconds(digits string) int {
	n := 0
	for i := 0; i < fractionPlaces; i++ {
		n *= 10
		if i < len(digits) {
			n += int(digits[i] - '0')
		}
	}

	if len(digits) < fractionMaxDigits || digits[fractionPlaces] < '5' {
		return n
	}

	switch p {
	case TruncateAfterNinthDigit:
		return n
	case RoundNinthDigitCarry:
		if n < 999999999 {
			n++
		}
		return n
	default:
		// An incremented '9' is no longer a digit, so the fraction ends at
		// the 8th place and the 9th contributes nothing.
		if digits[fractionPlaces-1] == '9' {
			return n - 9
		}
		return n + 1
	}
}

func digitAt(in string, i int) bool {
	return i >= 0 && i < len(in) && utility.IsDigit(in[i])
}

var errCannotParseNumber = errors.New("couldn't parse number")

// Convert string of length 2 to int
func atoi2(in string) (int, error) {
	if len(in) != 2 {
		return 0, errCannotParseNumber
	}
	a, b := int(in[0])-'0', int(in[1])-'0'
	if a < 0 || a > 9 || b < 0 || b > 9 {
		return 0, errCannotParseNumber
	}
	return a*10 + b, nil
}

// Convert string of length 4 to int
func atoi4(in string) (int, error) {
	if len(in) != 4 {
		return 0, errCannotParseNumber
	}
	a, b, c, d := int(in[0])-'0', int(in[1])-'0', int(in[2])-'0', int(in[3])-'0'
	if a < 0 || a > 9 || b < 0 || b > 9 || c < 0 || c > 9 || d < 0 || d > 9 {
		return 0, errCannotParseNumber
	}
	return a*1000 + b*100 + c*10 + d, nil
}
