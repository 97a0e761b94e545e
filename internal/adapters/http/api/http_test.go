package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/motionscore/internal/adapters/http/api"
	service "github.com/okian/motionscore/internal/app"
	"github.com/okian/motionscore/internal/domain/model"
	"github.com/okian/motionscore/internal/domain/types"
	"github.com/okian/motionscore/pkg/errkind"
)

type mockDeps struct {
	mu         sync.Mutex
	predictErr error
	readyErr   error
	reloadErr  error
	batchErr   error
	lastReq    types.PredictRequest
	lastReqID  string
	reloads    int
}

func (m *mockDeps) Predict(ctx context.Context, req types.PredictRequest) (types.ScoreResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastReq = req
	if m.predictErr != nil {
		return types.ScoreResponse{}, m.predictErr
	}
	if len(req.Keypoints) == 0 {
		return types.ScoreResponse{}, errkind.New("test", model.ErrEmptyInput)
	}
	return types.ScoreResponse{Score: 50, Symmetry: 0.2, Power: 0.3, Consistency: 0.4}, nil
}

func (m *mockDeps) PredictBatch(ctx context.Context, reqs []types.PredictRequest) ([]types.BatchResult, error) {
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	out := make([]types.BatchResult, len(reqs))
	for i, req := range reqs {
		out[i].Response, out[i].Err = m.Predict(ctx, req)
	}
	return out, nil
}

func (m *mockDeps) Ready(context.Context) error { return m.readyErr }

func (m *mockDeps) Reload(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads++
	return m.reloadErr
}

func (m *mockDeps) GetStats() types.Stats {
	return types.Stats{Started: true, ModelState: "ready", ModelLoads: 1, ModelDigest: "abc", DefaultTargetLen: 75}
}

func newMux(deps api.Dependencies, opts ...api.Option) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps, opts...).Register(context.Background(), mux)
	return mux
}

func postJSON(mux http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeError(w *httptest.ResponseRecorder) map[string]string {
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return body
}

func TestHealth(t *testing.T) {
	Convey("Given the API routes", t, func() {
		mux := newMux(&mockDeps{readyErr: errors.New("must not be consulted")})

		Convey("GET /healthz returns ok without touching the model", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldEqual, "ok")
		})

		Convey("HEAD /healthz returns 200", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodHead, "/healthz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("other methods are rejected with 405", func() {
			for _, m := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
				w := httptest.NewRecorder()
				mux.ServeHTTP(w, httptest.NewRequest(m, "/healthz", nil))
				So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(w.Header().Get("Allow"), ShouldContainSubstring, "GET")
			}
		})
	})
}

func TestPredict(t *testing.T) {
	Convey("Given a healthy predictor", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps, api.WithMaxBodyBytes(1024))

		Convey("a valid clip is scored", func() {
			w := postJSON(mux, "/predict", `{"keypoints":[{"x":0.1,"y":0.2},{"x":0.3,"y":0.4}],"fps":30}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			var resp types.ScoreResponse
			So(json.Unmarshal(w.Body.Bytes(), &resp), ShouldBeNil)
			So(resp, ShouldResemble, types.ScoreResponse{Score: 50, Symmetry: 0.2, Power: 0.3, Consistency: 0.4})
			So(deps.lastReq.Keypoints, ShouldHaveLength, 2)
			So(*deps.lastReq.FPS, ShouldEqual, float64(30))
		})

		Convey("the versioned alias serves the same handler", func() {
			w := postJSON(mux, "/api/v1/score", `{"keypoints":[{"x":1,"y":1}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("a caller request id is echoed", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"keypoints":[{"x":1,"y":1}]}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Request-Id", "test-123")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Header().Get("X-Request-Id"), ShouldEqual, "test-123")
		})

		Convey("a missing request id is generated", func() {
			w := postJSON(mux, "/predict", `{"keypoints":[{"x":1,"y":1}]}`)
			_, err := uuid.Parse(w.Header().Get("X-Request-Id"))
			So(err, ShouldBeNil)
		})

		Convey("non-JSON content types are rejected with 415", func() {
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(`{"keypoints":[]}`))
			req.Header.Set("Content-Type", "text/plain")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnsupportedMediaType)
			So(decodeError(w)["code"], ShouldEqual, "unsupported_media_type")
		})

		Convey("bodies over the limit are rejected with 413", func() {
			big := `{"keypoints":[` + strings.Repeat(`{"x":0.1,"y":0.2},`, 200) + `{"x":0,"y":0}]}`
			w := postJSON(mux, "/predict", big)
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
			So(decodeError(w)["code"], ShouldEqual, "payload_too_large")
		})

		Convey("malformed JSON and negative fps are bad requests", func() {
			So(postJSON(mux, "/predict", `{"keypoints":`).Code, ShouldEqual, http.StatusBadRequest)
			w := postJSON(mux, "/predict", `{"keypoints":[{"x":1,"y":1}],"fps":-5}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("an empty clip is reported as empty input", func() {
			w := postJSON(mux, "/predict", `{"keypoints":[]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "empty_input")
		})

		Convey("GET is not allowed", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict", nil))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestPredictErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"integrity", errkind.Wrap("session.load", model.ErrModelUnavailable, errkind.New("verify", model.ErrIntegrity)), http.StatusServiceUnavailable, "model_unavailable"},
		{"unsupported uri", errkind.New("load", model.ErrUnsupportedURI), http.StatusServiceUnavailable, "model_unavailable"},
		{"corrupt model", errkind.New("build", model.ErrCorruptModel), http.StatusServiceUnavailable, "model_unavailable"},
		{"inference", errkind.New("run", model.ErrInference), http.StatusInternalServerError, "inference_failed"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "cancelled"},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, "cancelled"},
		{"overloaded", errkind.Wrap("batch", service.ErrOverloaded, errors.New("queue full")), http.StatusServiceUnavailable, "overloaded"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal"},
	}

	Convey("Given predictor failures of each kind", t, func() {
		for _, tc := range cases {
			mux := newMux(&mockDeps{predictErr: tc.err})
			w := postJSON(mux, "/predict", `{"keypoints":[{"x":1,"y":1}]}`)

			So(w.Code, ShouldEqual, tc.status)
			So(decodeError(w)["code"], ShouldEqual, tc.code)
		}
	})
}

func TestReadyAndAdmin(t *testing.T) {
	Convey("Given a ready service", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("GET /readyz reports ready", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, `"ready"`)
		})

		Convey("POST /admin/reload reloads and returns stats", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(deps.reloads, ShouldEqual, 1)

			var stats types.Stats
			So(json.Unmarshal(w.Body.Bytes(), &stats), ShouldBeNil)
			So(stats.ModelDigest, ShouldEqual, "abc")
		})

		Convey("GET /admin/reload is not allowed", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/reload", nil))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
			So(deps.reloads, ShouldEqual, 0)
		})

		Convey("GET /stats returns JSON stats", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Header().Get("Content-Type"), ShouldStartWith, "application/json")
			So(w.Body.String(), ShouldContainSubstring, `"model_state":"ready"`)
		})

		Convey("GET /metrics exposes Prometheus text", func() {
			// Generate at least one series first.
			postJSON(mux, "/predict", `{"keypoints":[{"x":1,"y":1}]}`)
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			So(w.Code, ShouldEqual, http.StatusOK)
			So(w.Body.String(), ShouldContainSubstring, "motionscore_http_requests_total")
		})
	})

	Convey("Given a service whose model cannot load", t, func() {
		loadErr := errkind.Wrap("session.load", model.ErrModelUnavailable, errors.New("no such file"))
		mux := newMux(&mockDeps{readyErr: loadErr, reloadErr: loadErr})

		Convey("readiness is 503 model_unavailable", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(decodeError(w)["code"], ShouldEqual, "model_unavailable")
		})

		Convey("reload is 503", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/admin/reload", nil))
			So(w.Code, ShouldEqual, http.StatusServiceUnavailable)
		})
	})
}

func TestPredictBatch(t *testing.T) {
	type item struct {
		Index int  `json:"index"`
		Score *int `json:"score"`
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	type body struct {
		Results []item `json:"results"`
		Failed  int    `json:"failed"`
	}

	Convey("Given the batch route", t, func() {
		mux := newMux(&mockDeps{})

		Convey("each clip gets its own result in request order", func() {
			w := postJSON(mux, "/api/v1/score/batch",
				`{"clips":[{"keypoints":[{"x":1,"y":1}]},{"keypoints":[]},{"keypoints":[{"x":0,"y":0}],"fps":30}]}`)
			So(w.Code, ShouldEqual, http.StatusOK)

			var got body
			So(json.Unmarshal(w.Body.Bytes(), &got), ShouldBeNil)
			So(len(got.Results), ShouldEqual, 3)
			So(got.Failed, ShouldEqual, 1)

			So(got.Results[0].Index, ShouldEqual, 0)
			So(*got.Results[0].Score, ShouldEqual, 50)
			So(got.Results[0].Error, ShouldBeNil)

			So(got.Results[1].Score, ShouldBeNil)
			So(got.Results[1].Error.Code, ShouldEqual, "empty_input")

			So(got.Results[2].Index, ShouldEqual, 2)
			So(*got.Results[2].Score, ShouldEqual, 50)
		})

		Convey("a whole-batch rejection uses the shared error mapping", func() {
			mux := newMux(&mockDeps{batchErr: errkind.Wrap("batch", service.ErrInvalidRequest, service.ErrBatchTooLarge)})
			w := postJSON(mux, "/api/v1/score/batch", `{"clips":[{"keypoints":[{"x":1,"y":1}]}]}`)
			So(w.Code, ShouldEqual, http.StatusBadRequest)
			So(decodeError(w)["code"], ShouldEqual, "bad_request")
		})

		Convey("the JSON content type is required", func() {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/score/batch", strings.NewReader(`{"clips":[]}`))
			req.Header.Set("Content-Type", "text/plain")
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)
			So(w.Code, ShouldEqual, http.StatusUnsupportedMediaType)
		})

		Convey("GET is not allowed", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/score/batch", nil))
			So(w.Code, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("the body cap applies", func() {
			small := newMux(&mockDeps{}, api.WithMaxBodyBytes(16))
			w := postJSON(small, "/api/v1/score/batch", `{"clips":[{"keypoints":[{"x":1,"y":1}]}]}`)
			So(w.Code, ShouldEqual, http.StatusRequestEntityTooLarge)
		})
	})
}
