package probeadapter

import "testing"

func TestExtractResultFromFencedBlock(t *testing.T) {
	output := "Sure, here you go:\n```json\n{\"status\": \"complete\", \"should_continue\": false}\n```\nthanks"
	res, err := extractResult(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusComplete || res.ShouldContinue {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExtractResultFromRawObject(t *testing.T) {
	output := `noise before {"status": "working", "message": "still going", "should_continue": true} noise after`
	res, err := extractResult(output)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusWorking || !res.ShouldContinue {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestExtractResultFailsOnUnparseableOutput(t *testing.T) {
	if _, err := extractResult("I refuse to answer in JSON today."); err == nil {
		t.Fatal("expected an error for unparseable output")
	}
}
