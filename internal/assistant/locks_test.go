package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA, err := k.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlockB, err := k.Lock(context.Background(), "b")
	require.NoError(t, err, "different keys do not contend")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = k.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	acquired := make(chan struct{})
	go func() {
		unlock, err := k.Lock(context.Background(), "a")
		if err == nil {
			unlock()
		}
		close(acquired)
	}()
	unlockA()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}

	unlockB()
	assert.Equal(t, 0, k.size(), "idle keys are dropped")
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "hello there", title("  hello\n there "))
	long := title("¿Cuáles son las reseñas más recientes de mi cafetería en el centro de la ciudad esta semana?")
	assert.LessOrEqual(t, len([]rune(long)), maxTitleRunes+1)
	assert.True(t, len(long) > 0)
}
