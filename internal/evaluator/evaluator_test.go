package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/AnMoreNight/Simple-AICATS/internal/diagnosis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

var samplePrompt = Prompt{System: "json only", User: "score this", RespondentID: "R001", Stage: "pass_a", Question: 2}

func TestPromptKey(t *testing.T) {
	assert.Equal(t, "R001/pass_a/Q2", samplePrompt.Key())
	assert.Equal(t, "R001/synthesis", Prompt{RespondentID: "R001", Stage: "synthesis"}.Key())
}

// #region openai

func TestOpenAI_Invoke(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"primary_score\":4}  "}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI(OpenAIConfig{URL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
	require.NoError(t, err)

	text, err := c.Invoke(context.Background(), samplePrompt)
	require.NoError(t, err)

	assert.Equal(t, `{"primary_score":4}`, text)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 0.0, got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "score this", got.Messages[1].Content)
}

func TestOpenAI_Errors(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		body      string
		configErr bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, true},
		{"server error", http.StatusInternalServerError, `oops`, false},
		{"api error", http.StatusOK, `{"error":{"message":"quota"}}`, false},
		{"no choices", http.StatusOK, `{"choices":[]}`, false},
		{"not json", http.StatusOK, `<html>`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c, err := NewOpenAI(OpenAIConfig{URL: srv.URL, APIKey: "k", Model: "m"}, nil)
			require.NoError(t, err)

			_, err = c.Invoke(context.Background(), samplePrompt)
			require.Error(t, err)
			assert.Equal(t, tc.configErr, errors.Is(err, diagnosis.ErrConfiguration))
		})
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{URL: "http://x", Model: "m"}, nil)
	var cfgErr *diagnosis.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "evaluator.api_key", cfgErr.Key)
}

// #endregion openai

// #region fixture

func TestReplayer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	f := &Fixture{
		Description: "retry then accept",
		Replies:     map[string][]string{"R001/pass_a/Q2": {"garbage", `{"ok":true}`}},
		Defaults:    map[string]string{"synthesis": `{"overall_summary":"s"}`},
	}
	require.NoError(t, f.Save(path))

	loaded, err := LoadFixture(path)
	require.NoError(t, err)
	r := NewReplayer(loaded)
	ctx := context.Background()

	for _, want := range []string{"garbage", `{"ok":true}`, `{"ok":true}`} {
		got, err := r.Invoke(ctx, samplePrompt)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	got, err := r.Invoke(ctx, Prompt{RespondentID: "R009", Stage: "synthesis"})
	require.NoError(t, err)
	assert.Equal(t, `{"overall_summary":"s"}`, got)

	_, err = r.Invoke(ctx, Prompt{RespondentID: "R009", Stage: "consistency"})
	assert.Error(t, err)
}

// #endregion fixture

// #region limiter

func TestLimited_PassThroughAndCancel(t *testing.T) {
	calls := 0
	inner := Func(func(context.Context, Prompt) (string, error) {
		calls++
		return "ok", nil
	})

	_, wrapped := NewLimited(inner, 0).(*Limited)
	assert.False(t, wrapped, "zero rate leaves the evaluator unwrapped")

	lim := NewLimited(inner, 0.001)
	got, err := lim.Invoke(context.Background(), samplePrompt)
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = lim.Invoke(ctx, samplePrompt)
	assert.Error(t, err, "second call must wait far longer than the deadline")
	assert.Equal(t, 1, calls)
}

// #endregion limiter

// #region grpc

func startEvaluatorServer(t *testing.T, reply func(req *structpb.Struct, key string) (string, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ any, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != CompleteMethod {
			return errors.New("unexpected method " + method)
		}
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		var key string
		if md, ok := metadata.FromIncomingContext(stream.Context()); ok && len(md.Get("x-call-key")) > 0 {
			key = md.Get("x-call-key")[0]
		}
		text, err := reply(req, key)
		if err != nil {
			return err
		}
		resp, err := structpb.NewStruct(map[string]any{"text": text})
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))
	go srv.Serve(lis)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
		lis.Close()
	})
	return conn
}

func TestGRPC_Invoke(t *testing.T) {
	var seen *structpb.Struct
	var seenKey string
	conn := startEvaluatorServer(t, func(req *structpb.Struct, key string) (string, error) {
		seen, seenKey = req, key
		return `{"primary_score":3}`, nil
	})

	c := NewGRPCWithConn(conn)
	text, err := c.Invoke(context.Background(), samplePrompt)
	require.NoError(t, err)

	assert.Equal(t, `{"primary_score":3}`, text)
	assert.Equal(t, "R001/pass_a/Q2", seenKey)
	fields := seen.GetFields()
	assert.Equal(t, "score this", fields["user"].GetStringValue())
	assert.Equal(t, "pass_a", fields["stage"].GetStringValue())
	assert.Equal(t, 2.0, fields["question"].GetNumberValue())
	assert.NoError(t, c.Close(), "injected connections are not closed")
}

func TestGRPC_ServerError(t *testing.T) {
	conn := startEvaluatorServer(t, func(*structpb.Struct, string) (string, error) {
		return "", errors.New("model overloaded")
	})

	_, err := NewGRPCWithConn(conn).Invoke(context.Background(), samplePrompt)
	assert.ErrorContains(t, err, "model overloaded")
}

// #endregion grpc

// #region factory

func TestNew_Fixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.json")
	require.NoError(t, (&Fixture{Defaults: map[string]string{"pass_a": "{}"}}).Save(path))

	ev, closeFn, err := New(context.Background(), Settings{Provider: "fixture", FixturePath: path, RequestsPerSecond: 100}, nil)
	require.NoError(t, err)
	defer closeFn()

	_, ok := ev.(*Limited)
	assert.True(t, ok)
	got, err := ev.Invoke(context.Background(), samplePrompt)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)
}

func TestNew_ConfigurationErrors(t *testing.T) {
	for _, s := range []Settings{
		{Provider: "telegraph"},
		{Provider: "fixture", FixturePath: filepath.Join(t.TempDir(), "missing.json")},
		{Provider: "openai", URL: "http://x", Model: "m"},
		{Provider: "gemini"},
	} {
		_, closeFn, err := New(context.Background(), s, nil)
		assert.ErrorIs(t, err, diagnosis.ErrConfiguration, s.Provider)
		assert.NotNil(t, closeFn)
	}
}

// #endregion factory
