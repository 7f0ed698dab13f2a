package trackkey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLast8(t *testing.T) {
	require.Equal(t, "97428170", Last8("9400111899223197428170"))
	require.Equal(t, "97428170", Last8("9400 1118 9922 3197 4281 70"))
	require.Equal(t, "23456784", Last8("1Z-999-AA1-0123456784"))
	require.Equal(t, "", Last8("1234567"))
	require.Equal(t, "", Last8("ABCDEF"))
	require.Equal(t, "", Last8(""))
	require.Equal(t, "12345678", Last8("12345678"))
}

func TestLast8_Idempotent(t *testing.T) {
	k := Last8("9400111899223197428170")
	require.Len(t, k, 8)
	require.Equal(t, k, Last8(k))
}

func TestLast18(t *testing.T) {
	require.Equal(t, "1Z999AA10123456784", Last18("1z999aa10123456784"))
	require.Equal(t, Last18("1Z-999-AA1-0123456784"), Last18("1z999aa10123456784"))
	require.Equal(t, "9223197428170", Last18("9223197428170"))
	require.Equal(t, "", Last18("---"))
	require.Equal(t, "", Last18(""))

	long := Last18("94001118992231974281709999")
	require.Len(t, long, 18)
}

func TestLast18_LengthBound(t *testing.T) {
	for _, s := range []string{"a", "ab-12", "1Z999AA10123456784", "x9400111899223197428170x"} {
		require.LessOrEqual(t, len(Last18(s)), 18)
	}
}

func TestIsSKUScan(t *testing.T) {
	require.True(t, IsSKUScan("IPH12-64GB:3"))
	require.True(t, IsSKUScan("X00ABC123:"))
	require.False(t, IsSKUScan("9400111899223197428170"))
}

func TestSplitSKUScan(t *testing.T) {
	sku, n, ok := SplitSKUScan("IPH12-64GB:3")
	require.True(t, ok)
	require.Equal(t, "IPH12-64GB", sku)
	require.Equal(t, int32(3), n)

	sku, n, ok = SplitSKUScan("X00ABC123:")
	require.True(t, ok)
	require.Equal(t, "X00ABC123", sku)
	require.Equal(t, int32(1), n)

	// junk suffix falls back to 1
	_, n, ok = SplitSKUScan("SKU:abc")
	require.True(t, ok)
	require.Equal(t, int32(1), n)

	_, _, ok = SplitSKUScan("no-delimiter")
	require.False(t, ok)

	_, _, ok = SplitSKUScan(":3")
	require.False(t, ok)
}
