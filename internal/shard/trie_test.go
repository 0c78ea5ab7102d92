package shard

import "testing"

func TestTrieInsertAndExactLookup(t *testing.T) {
	tr := NewTrie()
	tr.Insert("search", 1, 0, 1)
	tr.Insert("searching", 2, 0, 1)

	cands := tr.Lookup("search", 0, false)
	if len(cands) != 1 || cands[0].Token != "search" || cands[0].Cost != 0 {
		t.Fatalf("expected exact match on `search`, got %+v", cands)
	}
}

func TestTrieLookupWithTypoBudget(t *testing.T) {
	tr := NewTrie()
	tr.Insert("search", 1, 0, 1)

	cands := tr.Lookup("serch", 1, false)
	if len(cands) != 1 || cands[0].Token != "search" || cands[0].Cost != 1 {
		t.Fatalf("expected one-edit match on `search`, got %+v", cands)
	}

	if cands := tr.Lookup("serch", 0, false); len(cands) != 0 {
		t.Errorf("expected no matches with zero typo budget, got %+v", cands)
	}
}

func TestTrieLookupPrefixMode(t *testing.T) {
	tr := NewTrie()
	tr.Insert("searching", 1, 0, 1)

	cands := tr.Lookup("search", 0, true)
	if len(cands) != 1 || cands[0].Token != "searching" {
		t.Fatalf("expected prefix match on `searching`, got %+v", cands)
	}

	if cands := tr.Lookup("search", 0, false); len(cands) != 0 {
		t.Errorf("expected no non-prefix match for a partial token, got %+v", cands)
	}
}

func TestTrieInsertAccumulatesTermFrequencyAndPositions(t *testing.T) {
	tr := NewTrie()
	tr.Insert("apple", 5, 0, 1)
	tr.Insert("apple", 5, 2, 1)

	cands := tr.Lookup("apple", 0, false)
	if len(cands) != 1 || len(cands[0].Postings) != 1 {
		t.Fatalf("expected one posting for seq_id 5, got %+v", cands)
	}
	p := cands[0].Postings[0]
	if p.TermFrequency != 2 {
		t.Errorf("expected term frequency 2, got %d", p.TermFrequency)
	}
	if len(p.ArrayPositions) != 2 || p.ArrayPositions[0] != 0 || p.ArrayPositions[1] != 2 {
		t.Errorf("expected array positions [0 2], got %v", p.ArrayPositions)
	}
}

func TestTrieEraseRemovesPostingButKeepsOtherDocs(t *testing.T) {
	tr := NewTrie()
	tr.Insert("banana", 1, 0, 1)
	tr.Insert("banana", 2, 0, 1)

	tr.Erase("banana", 1)

	cands := tr.Lookup("banana", 0, false)
	if len(cands) != 1 || len(cands[0].Postings) != 1 || cands[0].Postings[0].SeqID != 2 {
		t.Fatalf("expected only seq_id 2 to remain, got %+v", cands)
	}
}

func TestTrieLookupOrdersCheapestCostFirst(t *testing.T) {
	tr := NewTrie()
	tr.Insert("cat", 1, 0, 1)
	tr.Insert("cats", 2, 0, 1)
	tr.Insert("cot", 3, 0, 1)

	cands := tr.Lookup("cat", 1, false)
	if len(cands) < 2 {
		t.Fatalf("expected at least 2 candidates, got %+v", cands)
	}
	for i := 1; i < len(cands); i++ {
		if cands[i-1].Cost > cands[i].Cost {
			t.Errorf("expected non-decreasing cost order, got %+v", cands)
		}
	}
	if cands[0].Cost != 0 || cands[0].Token != "cat" {
		t.Errorf("expected exact match first, got %+v", cands[0])
	}
}
