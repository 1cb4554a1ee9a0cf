package api_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang/mock/gomock"
	"github.com/gorilla/websocket"
	"github.com/prostore-ios/sideloader/pkg/sideload/api"
	"github.com/prostore-ios/sideloader/pkg/sideload/identity"
	"github.com/prostore-ios/sideloader/pkg/sideload/model"
	"github.com/prostore-ios/sideloader/pkg/sideload/pipeline"
	mock_download "github.com/prostore-ios/sideloader/test/mock/sideload/download"
	mock_identity "github.com/prostore-ios/sideloader/test/mock/sideload/identity"
	mock_install "github.com/prostore-ios/sideloader/test/mock/sideload/install"
	mock_transform "github.com/prostore-ios/sideloader/test/mock/sideload/transform"
	"github.com/stretchr/testify/suite"
)

const restServerAddress = "localhost:9301"

type RestServerTestSuite struct {
	suite.Suite

	ctx        context.Context
	ctrl       *gomock.Controller
	matcher    *mock_identity.MockMatcher
	downloader *mock_download.MockDownloader
	signer     *mock_transform.MockSigner
	installer  *mock_install.MockInstaller

	restServer *api.RestServer
	baseURL    string
}

func TestRestServerTestSuite(t *testing.T) {
	suite.Run(t, new(RestServerTestSuite))
}

func (s *RestServerTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.matcher = mock_identity.NewMockMatcher(s.ctrl)
	s.downloader = mock_download.NewMockDownloader(s.ctrl)
	s.signer = mock_transform.NewMockSigner(s.ctrl)
	s.installer = mock_install.NewMockInstaller(s.ctrl)

	orchestrator := pipeline.NewOrchestrator(
		pipeline.WithDownloader(s.downloader),
		pipeline.WithSigner(s.signer),
		pipeline.WithInstaller(s.installer),
		pipeline.WithScratchBase(s.T().TempDir()),
	)
	s.restServer = api.NewRestServerWithController(s.matcher, orchestrator, restServerAddress)
	s.baseURL = fmt.Sprintf("http://%s", restServerAddress)

	go func() {
		if err := s.restServer.Run(); err != nil {
			s.T().Logf("rest server stopped: %v", err)
		}
	}()
	s.waitForServer()
}

func (s *RestServerTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(s.restServer.Close(ctx))
	s.ctrl.Finish()
}

func (s *RestServerTestSuite) waitForServer() {
	for i := 0; i < 50; i++ {
		conn, err := net.DialTimeout("tcp", restServerAddress, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	s.Require().FailNow("rest server did not come up")
}

func (s *RestServerTestSuite) postJSON(path string, body interface{}) *http.Response {
	payload, err := json.Marshal(body)
	s.Require().NoError(err)
	resp, err := http.Post(s.baseURL+path, "application/json", bytes.NewReader(payload))
	s.Require().NoError(err)
	return resp
}

func (s *RestServerTestSuite) TestVerifyIdentity() {
	request := api.VerifyIdentityRequest{
		Identity:   []byte("pkcs12 container"),
		Passphrase: "secret",
		Profile:    []byte("provisioning profile"),
	}
	s.matcher.EXPECT().
		Verify(gomock.Any(), identity.VerifyRequest{
			Identity:   request.Identity,
			Passphrase: request.Passphrase,
			Profile:    request.Profile,
		}).
		Return(model.MatchResultMatched, nil)

	resp := s.postJSON("/identity/verify", request)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var verifyResp api.VerifyIdentityResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&verifyResp))
	s.Assert().Equal(model.MatchResultMatched, verifyResp.Result)
}

func (s *RestServerTestSuite) TestVerifyIdentityInvalidInput() {
	s.matcher.EXPECT().
		Verify(gomock.Any(), gomock.Any()).
		Return(model.MatchResult(""), fmt.Errorf("identity is empty%w", model.ErrInvalidParameter))

	resp := s.postJSON("/identity/verify", api.VerifyIdentityRequest{})
	defer resp.Body.Close()
	s.Assert().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RestServerTestSuite) TestJobLifecycle() {
	s.installer.EXPECT().VerifyPairing(gomock.Any()).Return(nil)

	downloading := make(chan struct{})
	s.downloader.EXPECT().Download(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, url, destPath string, onProgress func(float64)) error {
			onProgress(0.25)
			close(downloading)
			<-ctx.Done()
			return ctx.Err()
		})

	resp := s.postJSON("/jobs", api.CreateJobRequest{
		SourceURL:  "https://apps.example.com/myapp.ipa",
		Identity:   []byte("pkcs12 container"),
		Passphrase: "secret",
		Profile:    []byte("provisioning profile"),
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var snapshot pipeline.JobSnapshot
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&snapshot))
	resp.Body.Close()
	s.Require().NotEmpty(snapshot.ID)

	<-downloading

	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s", s.baseURL, snapshot.ID))
	s.Require().NoError(err)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	var current pipeline.JobSnapshot
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&current))
	resp.Body.Close()
	s.Assert().Equal(snapshot.ID, current.ID)
	s.Assert().Equal(model.JobStateDownloading, current.State)

	wsURL := fmt.Sprintf("ws://%s/jobs/%s/events", restServerAddress, snapshot.ID)
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()

	resp = s.postJSON(fmt.Sprintf("/jobs/%s/cancel", snapshot.ID), struct{}{})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	var terminal *model.JobEvent
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var event model.JobEvent
		s.Require().NoError(json.Unmarshal(payload, &event))
		if event.Type == model.JobEventTerminal {
			terminal = &event
		}
	}
	s.Require().NotNil(terminal)
	s.Assert().Equal(model.JobStateCancelled, terminal.Outcome)
}

func (s *RestServerTestSuite) TestJobNotFound() {
	resp, err := http.Get(fmt.Sprintf("%s/jobs/%s", s.baseURL, "does-not-exist"))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Assert().Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RestServerTestSuite) TestCreateJobInvalidRequest() {
	resp := s.postJSON("/jobs", api.CreateJobRequest{SourceURL: "not a url"})
	defer resp.Body.Close()
	s.Assert().Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RestServerTestSuite) TestCreateJobRejectedWhileActive() {
	s.installer.EXPECT().VerifyPairing(gomock.Any()).Return(nil)

	downloading := make(chan struct{})
	release := make(chan struct{})
	s.downloader.EXPECT().Download(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, url, destPath string, onProgress func(float64)) error {
			close(downloading)
			<-release
			return errors.New("aborted")
		})

	request := api.CreateJobRequest{
		SourceURL: "https://apps.example.com/myapp.ipa",
		Identity:  []byte("pkcs12 container"),
		Profile:   []byte("provisioning profile"),
	}
	resp := s.postJSON("/jobs", request)
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var snapshot pipeline.JobSnapshot
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&snapshot))
	resp.Body.Close()
	<-downloading

	resp = s.postJSON("/jobs", request)
	s.Assert().Equal(http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	close(release)

	// Wait for the job to reach a terminal state before the controller checks
	// expectations.
	wsURL := fmt.Sprintf("ws://%s/jobs/%s/events", restServerAddress, snapshot.ID)
	conn, wsResp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	s.Require().NoError(err)
	if wsResp != nil {
		wsResp.Body.Close()
	}
	defer conn.Close()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
