package signature

import "testing"

func FuzzVerify(f *testing.F) {
	f.Add("order_ABC", "pay_XYZ", "", "secret")
	f.Add("order_ABC", "pay_XYZ", "deadbeef", "secret")
	f.Add("", "", "\x00\xff", "")
	f.Add("", "pay", Sign("", "pay", "k"), "k")
	f.Add("order|pipe", "pay", Sign("order|pipe", "pay", "k"), "k")

	f.Fuzz(func(t *testing.T, orderID, paymentID, sig, key string) {
		// Must never panic on arbitrary input.
		_ = Verify(orderID, paymentID, sig, key)

		if key == "" {
			return
		}
		good := Sign(orderID, paymentID, key)
		if !Verify(orderID, paymentID, good, key) {
			t.Fatalf("round trip failed for %q|%q", orderID, paymentID)
		}
		if sig != good && Verify(orderID, paymentID, sig, key) {
			t.Fatalf("altered signature %q accepted", sig)
		}
	})
}
