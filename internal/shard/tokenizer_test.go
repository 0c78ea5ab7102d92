package shard

import (
	"reflect"
	"testing"
)

func TestTokenizeLowercasesAndSplitsOnPunctuation(t *testing.T) {
	got := Tokenize("Hello, World! It's 2024.")
	want := []string{"hello", "world", "it", "s", "2024"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestTokenizeEmptyString(t *testing.T) {
	if got := Tokenize(""); got != nil {
		t.Errorf("expected nil tokens for empty string, got %v", got)
	}
}

func TestTokenizeDoesNotStemOrDropStopwords(t *testing.T) {
	got := Tokenize("the running dogs")
	want := []string{"the", "running", "dogs"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected literal tokens %v, got %v", want, got)
	}
}
