package monzo

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codeRecorder struct {
	code string
	err  error
}

func (c *codeRecorder) SaveAuthCode(code string) error {
	c.code = code
	return c.err
}

func awaitAsync(l *CallbackListener) <-chan error {
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		done <- l.Await(ctx)
	}()
	return done
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestCallbackCapturesCode(t *testing.T) {
	saver := &codeRecorder{}
	l, err := ListenCallback("http://127.0.0.1:0/callback", "state-1", saver)
	require.NoError(t, err)
	done := awaitAsync(l)

	// unrelated requests such as the favicon don't use up the listener
	status, _ := get(t, "http://"+l.Addr()+"/favicon.ico")
	assert.Equal(t, http.StatusNotFound, status)

	status, body := get(t, "http://"+l.Addr()+"/callback?code=abc&state=state-1")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "Authorization Successful")

	require.NoError(t, <-done)
	assert.Equal(t, "abc", saver.code)

	// the port is released afterwards
	_, err = http.Get("http://" + l.Addr() + "/callback?code=again")
	assert.Error(t, err)
}

func TestCallbackMissingCode(t *testing.T) {
	saver := &codeRecorder{}
	l, err := ListenCallback("http://127.0.0.1:0/callback", "", saver)
	require.NoError(t, err)
	done := awaitAsync(l)

	status, body := get(t, "http://"+l.Addr()+"/callback?error=access_denied")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "Authorization Failed")

	assert.ErrorIs(t, <-done, ErrMissingCode)
	assert.Empty(t, saver.code)
}

func TestCallbackStateMismatch(t *testing.T) {
	saver := &codeRecorder{}
	l, err := ListenCallback("http://127.0.0.1:0/callback", "expected", saver)
	require.NoError(t, err)
	done := awaitAsync(l)

	status, _ := get(t, "http://"+l.Addr()+"/callback?code=abc&state=forged")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.ErrorIs(t, <-done, ErrStateMismatch)
	assert.Empty(t, saver.code)
}

func TestCallbackSaveFailure(t *testing.T) {
	saver := &codeRecorder{err: errors.New("keyring locked")}
	l, err := ListenCallback("http://127.0.0.1:0/callback", "", saver)
	require.NoError(t, err)
	done := awaitAsync(l)

	status, body := get(t, "http://"+l.Addr()+"/callback?code=abc")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Contains(t, body, "keyring locked")
	assert.EqualError(t, <-done, "keyring locked")
}

func TestCallbackContextCancel(t *testing.T) {
	l, err := ListenCallback("http://127.0.0.1:0/callback", "", &codeRecorder{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Await(ctx), context.Canceled)
}
