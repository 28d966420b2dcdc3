package fetch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus(t *testing.T) {
	bus := NewBus()
	var mu sync.Mutex
	var got []string

	unregisterA := bus.Register(ObserverFunc(func(e Event) {
		mu.Lock()
		got = append(got, "a:"+string(e.Kind))
		mu.Unlock()
	}))
	bus.Register(ObserverFunc(func(e Event) {
		mu.Lock()
		got = append(got, "b:"+string(e.Kind))
		mu.Unlock()
	}))

	bus.Observe(Event{Kind: EventStart})
	unregisterA()
	unregisterA()
	bus.Observe(Event{Kind: EventFinish})

	assert.ElementsMatch(t, []string{"a:start", "b:start", "b:finish"}, got)
}

func TestSerialQueue(t *testing.T) {
	q := NewSerialQueue()

	var order []int
	for i := 0; i < 100; i++ {
		q.Dispatch(func() { order = append(order, i) })
	}
	q.Flush()
	assert.Len(t, order, 100)
	for i, v := range order {
		assert.Equal(t, i, v)
	}

	q.Close()
	ran := false
	q.Dispatch(func() { ran = true })
	assert.True(t, ran, "work dispatched after Close runs inline")
}

func TestStateAndOptions(t *testing.T) {
	assert.Equal(t, "running", StateRunning.String())
	assert.True(t, StateFailed.IsTerminal())
	assert.False(t, StatePending.IsTerminal())

	opts := OptionProgressive | OptionHandleCookies
	assert.True(t, opts.Has(OptionProgressive))
	assert.False(t, opts.Has(OptionUseCache))
	assert.Equal(t, "progressive|handle-cookies", opts.String())
	assert.Equal(t, "none", Options(0).String())
}
