package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// CodeGenerator produces booking codes.
type CodeGenerator interface {
	NewBookingCode(createdAt time.Time) (BookingCode, error)
}

// CodeGeneratorFunc adapts a function to CodeGenerator.
type CodeGeneratorFunc func(createdAt time.Time) (BookingCode, error)

// NewBookingCode calls the function.
func (generate CodeGeneratorFunc) NewBookingCode(createdAt time.Time) (BookingCode, error) {
	return generate(createdAt)
}

// RandomCodeGenerator draws the code suffix from crypto/rand.
type RandomCodeGenerator struct{}

// NewBookingCode returns BK-<createdAt day>-<4 random characters>.
func (RandomCodeGenerator) NewBookingCode(createdAt time.Time) (BookingCode, error) {
	alphabetSize := big.NewInt(int64(len(bookingCodeAlphabet)))
	var suffix strings.Builder
	for index := 0; index < bookingCodeSuffixLen; index++ {
		position, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return BookingCode{}, WrapError(errorOperationService, errorSubjectCode, errorCodeGenerate, err)
		}
		suffix.WriteByte(bookingCodeAlphabet[position.Int64()])
	}
	return ParseBookingCode(fmt.Sprintf("%s-%s-%s", bookingCodePrefix, createdAt.Format(bookingCodeDayLayout), suffix.String()))
}
