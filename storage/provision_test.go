package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

func TestAlreadyExists(t *testing.T) {
	exists := &azcore.ResponseError{ErrorCode: "QueueAlreadyExists", StatusCode: 409}
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"match", exists, true},
		{"wrapped", fmt.Errorf("create: %w", exists), true},
		{"other code", &azcore.ResponseError{ErrorCode: "QueueBeingDeleted"}, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := alreadyExists(tc.err, "QueueAlreadyExists"); got != tc.want {
				t.Fatalf("alreadyExists = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTableNamesAll(t *testing.T) {
	n := TableNames{Boards: "b", Lists: "l", Cards: "c", Comments: "m", Activities: "a"}
	got := n.All()
	if len(got) != 5 || got[0] != "b" || got[4] != "a" {
		t.Fatalf("unexpected order %v", got)
	}
}
