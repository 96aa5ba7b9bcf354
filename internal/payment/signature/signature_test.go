package signature

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const secret = "test_secret_key"

func TestVerify(t *testing.T) {
	valid := Sign("order_ABC", "pay_XYZ", secret)

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		secret    string
		want      bool
	}{
		{"valid signature", "order_ABC", "pay_XYZ", valid, secret, true},
		{"uppercase hex is rejected", "order_ABC", "pay_XYZ", strings.ToUpper(valid), secret, false},
		{"wrong secret", "order_ABC", "pay_XYZ", valid, "other", false},
		{"swapped ids", "pay_XYZ", "order_ABC", valid, secret, false},
		{"different payment", "order_ABC", "pay_OTHER", valid, secret, false},
		{"empty signature", "order_ABC", "pay_XYZ", "", secret, false},
		{"non-hex signature", "order_ABC", "pay_XYZ", strings.Repeat("zz", 32), secret, false},
		{"truncated signature", "order_ABC", "pay_XYZ", valid[:62], secret, false},
		{"odd length", "order_ABC", "pay_XYZ", valid[:63], secret, false},
		{"extended signature", "order_ABC", "pay_XYZ", valid + "00", secret, false},
		{"empty order id round trips", "", "pay_XYZ", Sign("", "pay_XYZ", secret), secret, true},
		{"empty payment id round trips", "order_ABC", "", Sign("order_ABC", "", secret), secret, true},
		{"empty secret", "order_ABC", "pay_XYZ", Sign("order_ABC", "pay_XYZ", ""), "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Verify(tt.orderID, tt.paymentID, tt.signature, tt.secret))
		})
	}
}

func TestVerify_AnyAlteredCharacterFails(t *testing.T) {
	valid := Sign("order_ABC", "pay_XYZ", secret)
	for i := range valid {
		altered := []byte(valid)
		if altered[i] == '0' {
			altered[i] = '1'
		} else {
			altered[i] = '0'
		}
		assert.False(t, Verify("order_ABC", "pay_XYZ", string(altered), secret), "position %d", i)
	}
}

func TestVerify_CaseChangedLetterFails(t *testing.T) {
	valid := Sign("order_ABC", "pay_XYZ", secret)
	for i := range valid {
		if valid[i] < 'a' || valid[i] > 'f' {
			continue
		}
		altered := []byte(valid)
		altered[i] -= 'a' - 'A'
		assert.False(t, Verify("order_ABC", "pay_XYZ", string(altered), secret), "position %d", i)
	}
}

func TestSign_KnownVector(t *testing.T) {
	got := NewVerifier("secret").Sign("order_1", "pay_1")
	assert.Equal(t, "52115a0d3400de9e86aade1f1b6eba9e8974604f4e267a9e9a16633a4c8dd2cb", got)
	assert.True(t, NewVerifier("secret").Verify("order_1", "pay_1", got))
}
