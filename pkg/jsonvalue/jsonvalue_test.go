package jsonvalue

import "testing"

func TestSerializeOrderPreserved(t *testing.T) {
	obj := NewObject()
	obj.Set("name", NewString("get_weather"))
	obj.Set("arguments", NewString(`{"city": "Paris"}`))

	got := obj.Serialize()
	want := `{"name":"get_weather","arguments":"{\"city\": \"Paris\"}"}`
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestSerializeReinsertKeepsPosition(t *testing.T) {
	obj := NewObject()
	obj.Set("a", NewNumber("1"))
	obj.Set("b", NewNumber("2"))
	obj.Set("a", NewNumber("9"))

	got := obj.Serialize()
	want := `{"a":9,"b":2}`
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestSerializeNoHTMLEscaping(t *testing.T) {
	v := NewString("a < b && c > d")
	got := v.Serialize()
	want := `"a < b && c > d"`
	if got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestArrayAccessors(t *testing.T) {
	arr := NewArray(NewNumber("1"), NewNumber("2"), NewNumber("3"))
	if arr.Len() != 3 {
		t.Fatalf("expected len 3, got %d", arr.Len())
	}
	if arr.At(1).NumberV != "2" {
		t.Fatalf("expected second element 2, got %s", arr.At(1).NumberV)
	}
	if arr.At(5) != nil {
		t.Fatal("expected nil for out-of-range index")
	}
}
