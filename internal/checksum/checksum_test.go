package checksum

import "testing"

func TestSum(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := Sum([]byte("hello")); got != want {
		t.Errorf("Sum = %q, want %q", got, want)
	}
}

func TestJSON(t *testing.T) {
	a := JSON(map[string]string{"name": "A"})
	if a != Sum([]byte(`{"name":"A"}`)) {
		t.Errorf("JSON digest does not match the encoded bytes")
	}
	if JSON(map[string]string{"name": "B"}) == a {
		t.Error("different values should differ")
	}
	if got := JSON(make(chan int)); got != "" {
		t.Errorf("unencodable value digest = %q, want empty", got)
	}
}
