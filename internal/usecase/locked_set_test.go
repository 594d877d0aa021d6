package usecase

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockedSet_ReplaceAllAndContains(t *testing.T) {
	s := NewLockedSet()

	s.ReplaceAll([]string{"a", "b"})

	assert.True(t, s.Contains("a"))
	assert.True(t, s.Contains("b"))
	assert.False(t, s.Contains("c"))
	assert.Equal(t, 2, s.Len())
}

func TestLockedSet_ReplaceAllClearsPrevious(t *testing.T) {
	s := NewLockedSet("a", "b")

	s.ReplaceAll([]string{"c"})

	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("c"))
	assert.Equal(t, []string{"c"}, s.Snapshot())

	s.ReplaceAll(nil)
	assert.Equal(t, 0, s.Len())
}

func TestLockedSet_DuplicatesCollapse(t *testing.T) {
	s := NewLockedSet("b", "a", "b")
	assert.Equal(t, []string{"a", "b"}, s.Snapshot())
}

func TestLockedSet_NilContains(t *testing.T) {
	var s *LockedSet
	assert.False(t, s.Contains("a"))
}

func TestLockedSet_ConcurrentReadersSeeWholeSets(t *testing.T) {
	s := NewLockedSet("old-1", "old-2")
	oldSet := []string{"old-1", "old-2"}
	newSet := []string{"new-1", "new-2"}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := s.Snapshot()
				if !assert.Len(t, snap, 2) {
					return
				}
				mixed := strings.HasPrefix(snap[0], "old") != strings.HasPrefix(snap[1], "old")
				if !assert.False(t, mixed, "saw partial set %v", snap) {
					return
				}
			}
		}()
	}

	for i := 0; i < 200; i++ {
		if i%2 == 0 {
			s.ReplaceAll(newSet)
		} else {
			s.ReplaceAll(oldSet)
		}
	}
	close(stop)
	wg.Wait()
}

func TestValidPackageID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{id: "com.bank.app", want: true},
		{id: "firefox", want: true},
		{id: "org.mozilla.firefox_beta", want: true},
		{id: "", want: false},
		{id: "com bank", want: false},
		{id: " com.bank.app", want: false},
		{id: "com.bank\n", want: false},
		{id: "com.bank\x00", want: false},
		{id: string([]byte{0xff, 0xfe}), want: false},
		{id: strings.Repeat("a", MaxPackageIDLength), want: true},
		{id: strings.Repeat("a", MaxPackageIDLength+1), want: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, ValidPackageID(tt.id))
		})
	}
}
