// Copyright 2017 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package node

import (
	"errors"
	"net/http"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoService struct{}

func (s *echoService) Echo(msg string) string { return msg }

type recordingLifecycle struct {
	name     string
	log      *[]string
	startErr error
	stopErr  error
}

func (l *recordingLifecycle) Start() error {
	*l.log = append(*l.log, "start "+l.name)
	return l.startErr
}

func (l *recordingLifecycle) Stop() error {
	*l.log = append(*l.log, "stop "+l.name)
	return l.stopErr
}

func testConfig(t *testing.T) *Config {
	return &Config{
		Name:         "test",
		DataDir:      t.TempDir(),
		HTTPHost:     "127.0.0.1",
		HTTPPort:     0,
		HTTPTimeouts: rpc.DefaultHTTPTimeouts,
		WSHost:       "127.0.0.1",
		WSPort:       0,
	}
}

func startTestNode(t *testing.T, conf *Config) *Node {
	stack, err := New(conf)
	require.NoError(t, err)
	stack.RegisterAPIs([]rpc.API{{Namespace: "test", Service: new(echoService)}})
	require.NoError(t, stack.Start())
	t.Cleanup(func() { stack.Close() })
	return stack
}

func TestLifecycleOrder(t *testing.T) {
	var events []string
	stack, err := New(&Config{Name: "test"})
	require.NoError(t, err)

	stack.RegisterLifecycle(&recordingLifecycle{name: "a", log: &events})
	stack.RegisterLifecycle(&recordingLifecycle{name: "b", log: &events})
	require.NoError(t, stack.Start())
	assert.ErrorIs(t, stack.Start(), ErrNodeRunning)
	require.NoError(t, stack.Close())
	assert.ErrorIs(t, stack.Close(), ErrNodeStopped)

	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, events)
}

func TestLifecycleStartFailure(t *testing.T) {
	var events []string
	stack, err := New(&Config{Name: "test"})
	require.NoError(t, err)

	boom := errors.New("boom")
	stack.RegisterLifecycle(&recordingLifecycle{name: "a", log: &events})
	stack.RegisterLifecycle(&recordingLifecycle{name: "b", log: &events, startErr: boom})
	stack.RegisterLifecycle(&recordingLifecycle{name: "c", log: &events})

	assert.ErrorIs(t, stack.Start(), boom)
	assert.Equal(t, []string{"start a", "start b", "stop a"}, events)
	assert.ErrorIs(t, stack.Close(), ErrNodeStopped)
}

func TestStopError(t *testing.T) {
	var events []string
	stack, err := New(&Config{Name: "test"})
	require.NoError(t, err)

	life := &recordingLifecycle{name: "a", log: &events, stopErr: errors.New("stuck")}
	stack.RegisterLifecycle(life)
	require.NoError(t, stack.Start())

	err = stack.Close()
	var stopErr *StopError
	require.ErrorAs(t, err, &stopErr)
	assert.Contains(t, stopErr.Services, reflect.TypeOf(life))
}

func TestRegisterLifecycleTwice(t *testing.T) {
	stack, err := New(&Config{Name: "test"})
	require.NoError(t, err)
	defer stack.Close()

	life := &recordingLifecycle{name: "a", log: new([]string)}
	stack.RegisterLifecycle(life)
	assert.Panics(t, func() { stack.RegisterLifecycle(life) })
}

func TestDatadirLock(t *testing.T) {
	conf := &Config{Name: "test", DataDir: t.TempDir()}
	first, err := New(conf)
	require.NoError(t, err)

	_, err = New(conf)
	assert.ErrorIs(t, err, ErrDatadirUsed)

	require.NoError(t, first.Close())
	second, err := New(conf)
	require.NoError(t, err)
	second.Close()
}

func TestInvalidName(t *testing.T) {
	for _, name := range []string{"a/b", `a\b`, "node.ipc"} {
		_, err := New(&Config{Name: name})
		assert.Error(t, err, name)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()
	conf := &Config{Name: "tevm", DataDir: dir}
	assert.Equal(t, filepath.Join(dir, "tevm", "state.json"), conf.ResolvePath("state.json"))
	assert.Equal(t, "/abs/state.json", conf.ResolvePath("/abs/state.json"))

	ephemeral := &Config{Name: "tevm"}
	assert.Equal(t, "state.json", ephemeral.ResolvePath("state.json"))
	assert.Equal(t, "", ephemeral.ResolvePath(""))
}

func TestHTTPAndWebsocketShareListener(t *testing.T) {
	stack := startTestNode(t, testConfig(t))

	assert.True(t, strings.HasPrefix(stack.HTTPEndpoint(), "http://127.0.0.1:"))
	assert.Equal(t, strings.TrimPrefix(stack.HTTPEndpoint(), "http://"), strings.TrimPrefix(stack.WSEndpoint(), "ws://"))

	for _, url := range []string{stack.HTTPEndpoint(), stack.WSEndpoint()} {
		client, err := rpc.Dial(url)
		require.NoError(t, err, url)
		var reply string
		require.NoError(t, client.Call(&reply, "test_echo", "hello"), url)
		assert.Equal(t, "hello", reply)
		client.Close()
	}
}

func TestWebsocketOrigins(t *testing.T) {
	conf := testConfig(t)
	conf.WSOrigins = []string{"http://allowed.example"}
	stack := startTestNode(t, conf)

	dial := func(origin string) (int, error) {
		conn, resp, err := websocket.DefaultDialer.Dial(stack.WSEndpoint(), http.Header{"Origin": {origin}})
		if conn != nil {
			conn.Close()
		}
		if resp == nil {
			return 0, err
		}
		return resp.StatusCode, err
	}
	code, err := dial("http://allowed.example")
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, code)

	code, err = dial("http://other.example")
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestAttach(t *testing.T) {
	conf := testConfig(t)
	conf.HTTPHost, conf.WSHost = "", ""
	stack := startTestNode(t, conf)

	client := stack.Attach()
	defer client.Close()
	var reply string
	require.NoError(t, client.Call(&reply, "test_echo", "inproc"))
	assert.Equal(t, "inproc", reply)

	var dir string
	require.NoError(t, client.Call(&dir, "admin_datadir"))
	assert.Equal(t, stack.DataDir(), dir)
}

func TestModuleAllowList(t *testing.T) {
	conf := testConfig(t)
	conf.HTTPModules = []string{"admin"}
	conf.WSHost = ""
	stack := startTestNode(t, conf)

	client, err := rpc.Dial(stack.HTTPEndpoint())
	require.NoError(t, err)
	defer client.Close()

	var reply string
	assert.Error(t, client.Call(&reply, "test_echo", "x"))
	var dir string
	assert.NoError(t, client.Call(&dir, "admin_datadir"))
}

func TestVirtualHosts(t *testing.T) {
	conf := testConfig(t)
	conf.HTTPVirtualHosts = []string{"localhost"}
	stack := startTestNode(t, conf)

	post := func(host string) int {
		req, err := http.NewRequest(http.MethodPost, stack.HTTPEndpoint(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["x"]}`))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Host = host
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	assert.Equal(t, http.StatusOK, post("localhost:8545"))
	assert.Equal(t, http.StatusOK, post("127.0.0.1"))
	assert.Equal(t, http.StatusForbidden, post("evil.example"))
}

func TestCorsHeaders(t *testing.T) {
	conf := testConfig(t)
	conf.HTTPCors = []string{"*"}
	stack := startTestNode(t, conf)

	req, err := http.NewRequest(http.MethodPost, stack.HTTPEndpoint(), strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"test_echo","params":["x"]}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "http://app.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestPathPrefix(t *testing.T) {
	conf := testConfig(t)
	conf.HTTPPathPrefix = "/rpc"
	conf.WSHost = ""
	stack := startTestNode(t, conf)

	resp, err := http.Post(stack.HTTPEndpoint()+"/", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	client, err := rpc.Dial(stack.HTTPEndpoint() + "/rpc")
	require.NoError(t, err)
	defer client.Close()
	var reply string
	require.NoError(t, client.Call(&reply, "test_echo", "prefixed"))
	assert.Equal(t, "prefixed", reply)
}

func TestValidatePrefix(t *testing.T) {
	assert.NoError(t, validatePrefix("HTTP", ""))
	assert.NoError(t, validatePrefix("HTTP", "/rpc"))
	assert.Error(t, validatePrefix("HTTP", "rpc"))
	assert.Error(t, validatePrefix("HTTP", "/rpc?x"))

	_, err := New(&Config{Name: "test", WSPathPrefix: "ws"})
	assert.Error(t, err)
}

func TestAdminStartStopHTTP(t *testing.T) {
	conf := testConfig(t)
	conf.HTTPHost, conf.WSHost = "", ""
	stack := startTestNode(t, conf)

	api := &adminAPI{stack}
	host, port := "127.0.0.1", 0
	ok, err := api.StartHTTP(&host, &port, nil, nil, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEmpty(t, api.NodeInfo().HTTP)

	client, err := rpc.Dial(stack.HTTPEndpoint())
	require.NoError(t, err)
	var reply string
	require.NoError(t, client.Call(&reply, "test_echo", "late"))
	client.Close()

	ok, err = api.StopHTTP()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, api.NodeInfo().HTTP)
}

func TestCheckModuleAvailability(t *testing.T) {
	apis := []rpc.API{{Namespace: "eth"}, {Namespace: "eth"}, {Namespace: "anvil"}}
	bad, available := checkModuleAvailability([]string{"eth", "rpc", "admin"}, apis)
	assert.Equal(t, []string{"admin"}, bad)
	assert.Equal(t, []string{"eth", "anvil"}, available)
}

func TestCheckTimeouts(t *testing.T) {
	timeouts := rpc.HTTPTimeouts{
		ReadTimeout:       0,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       time.Millisecond,
	}
	CheckTimeouts(&timeouts)
	assert.Equal(t, rpc.DefaultHTTPTimeouts.ReadTimeout, timeouts.ReadTimeout)
	assert.Equal(t, rpc.DefaultHTTPTimeouts.IdleTimeout, timeouts.IdleTimeout)
	assert.Equal(t, 5*time.Second, timeouts.WriteTimeout)
	assert.Equal(t, 2*time.Second, timeouts.ReadHeaderTimeout)
}
