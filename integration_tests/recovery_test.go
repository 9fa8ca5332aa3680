package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/worldpeaceenginelabs/cloudatlas.go/geohash"
	"github.com/worldpeaceenginelabs/cloudatlas.go/lib/service"
)

type RecoveryTestSuite struct {
	suite.Suite
	network *mockRelayNetwork
}

func (suite *RecoveryTestSuite) SetupTest() {
	suite.network = newMockRelayNetwork()
}

func testConfig() *service.Config {
	return &service.Config{
		Vertical:            "helpouts",
		RequestTTLSecs:      60,
		RefreshIntervalSecs: 1,
		ListingTTLDays:      7,
		CacheTTLMinutes:     30,
		RecoveryTimeoutSecs: 2,
	}
}

func (suite *RecoveryTestSuite) TestRequesterSessionSurvivesRestart() {
	ctx := context.Background()
	pool := newMockPool(suite.network)

	first := newTestServiceWithPool(suite.T(), pool, testConfig())
	req, err := first.StartAsRequester(ctx, geohash.Point{Lat: 10.000, Lon: 20.000}, nil, nil)
	assert.NoError(suite.T(), err)
	waitForState(suite.T(), first, "pending")

	// crash without a take-down: the relay record stays live
	first.Shutdown()

	second := newTestServiceWithPool(suite.T(), pool, testConfig())
	assert.NoError(suite.T(), second.RecoverSession(ctx))

	snap := waitForState(suite.T(), second, "pending")
	assert.Equal(suite.T(), string(service.RoleRequester), snap.Role)
	assert.Equal(suite.T(), req.ID, snap.Request.ID)
	assert.Equal(suite.T(), req.Geohash, snap.Geohash)
}

func (suite *RecoveryTestSuite) TestMatchedSessionRecoversAsMatched() {
	ctx := context.Background()
	pool := newMockPool(suite.network)

	first := newTestServiceWithPool(suite.T(), pool, testConfig())
	req, err := first.StartAsRequester(ctx, geohash.Point{Lat: 10.000, Lon: 20.000}, nil, nil)
	assert.NoError(suite.T(), err)
	waitForState(suite.T(), first, "pending")

	provider := newTestService(suite.T(), suite.network)
	_, err = provider.StartAsProvider(ctx, geohash.Point{Lat: 10.001, Lon: 20.001}, nil)
	assert.NoError(suite.T(), err)
	assert.Eventually(suite.T(), func() bool {
		s, _ := provider.CurrentSession()
		return s.Candidate != nil
	}, 5*time.Second, 20*time.Millisecond)
	assert.NoError(suite.T(), provider.AcceptRequest(req.ID))
	waitForState(suite.T(), first, "matched")

	first.Shutdown()

	second := newTestServiceWithPool(suite.T(), pool, testConfig())
	assert.NoError(suite.T(), second.RecoverSession(ctx))

	snap := waitForState(suite.T(), second, "matched")
	assert.Equal(suite.T(), provider.Pool.PublicKey(), snap.MatchedProviderPubkey)
}

func (suite *RecoveryTestSuite) TestNothingToRecover() {
	ctx := context.Background()
	pool := newMockPool(suite.network)

	svc := newTestServiceWithPool(suite.T(), pool, testConfig())
	assert.NoError(suite.T(), svc.RecoverSession(ctx))
	_, ok := svc.CurrentSession()
	assert.False(suite.T(), ok)
}

func (suite *RecoveryTestSuite) TestCancelledSessionIsNotRecovered() {
	ctx := context.Background()
	pool := newMockPool(suite.network)

	first := newTestServiceWithPool(suite.T(), pool, testConfig())
	_, err := first.StartAsRequester(ctx, geohash.Point{Lat: 10.000, Lon: 20.000}, nil, nil)
	assert.NoError(suite.T(), err)
	waitForState(suite.T(), first, "pending")
	assert.NoError(suite.T(), first.CancelSession())

	second := newTestServiceWithPool(suite.T(), pool, testConfig())
	assert.NoError(suite.T(), second.RecoverSession(ctx))
	_, ok := second.CurrentSession()
	assert.False(suite.T(), ok)
}

func TestRecoverySuite(t *testing.T) {
	suite.Run(t, new(RecoveryTestSuite))
}
