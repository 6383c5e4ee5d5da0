package converters

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUTF8PassThrough(t *testing.T) {
	conv := NewStringConverter(CharsetAL32UTF8)
	input := "héllo wörld 漢字"
	assert.Equal(t, []byte(input), conv.Encode(input))
	assert.Equal(t, input, conv.Decode([]byte(input)))
}

func TestUTF16RoundTrip(t *testing.T) {
	for _, langID := range []int{CharsetUTF16BE, CharsetUTF16LE} {
		conv := NewStringConverter(langID)
		input := "héllo 漢字 𐍈" // includes a surrogate pair
		encoded := conv.Encode(input)
		assert.Equal(t, input, conv.Decode(encoded), "charset %d", langID)
	}
}

func TestUTF16Endianness(t *testing.T) {
	be := NewStringConverter(CharsetUTF16BE)
	le := NewStringConverter(CharsetUTF16LE)
	assert.Equal(t, []byte{0x00, 'A'}, be.Encode("A"))
	assert.Equal(t, []byte{'A', 0x00}, le.Encode("A"))
}

func TestEightBitReplacementPolicy(t *testing.T) {
	conv := NewStringConverter(178) // a single-byte charset id
	out := conv.Decode([]byte{'a', 0xE9, 'b'})
	// ASCII survives, high bytes substitute rather than corrupting
	assert.Equal(t, "a", out[:1])
	assert.Equal(t, "b", out[len(out)-1:])
	assert.NotEqual(t, "a\xE9b", out)
}

func TestInvalidUTF8Substitution(t *testing.T) {
	conv := NewStringConverter(CharsetUTF8)
	out := conv.Decode([]byte{'o', 'k', 0xFF, 0xFE})
	assert.Equal(t, "ok", out[:2])
}

func TestSetLangID(t *testing.T) {
	conv := NewStringConverter(CharsetUTF8)
	old := conv.SetLangID(CharsetUTF16BE)
	assert.Equal(t, CharsetUTF8, old)
	assert.Equal(t, CharsetUTF16BE, conv.GetLangID())
}
