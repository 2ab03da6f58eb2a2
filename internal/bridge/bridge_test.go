package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/jgulick48/powermon433-mqtt/internal/models"
	"github.com/jgulick48/powermon433-mqtt/internal/mqtt"
	"github.com/jgulick48/powermon433-mqtt/internal/powermon"
)

const (
	goodLine      = "{'sensor':'0x0000','PrintDelta_ms':500,'Total_Energy_Wh':12.3,'Power_W':45,'Temp_C':21.5}\n"
	goodLineJSON  = `{"sensor":"0x0000","PrintDelta_ms":500,"Total_Energy_Wh":12.3,"Power_W":45,"Temp_C":21.5}`
	otherLine     = "{'sensor':'0x0001','Power_W':12}\n"
	badLine       = "{'sensor':'0x0000','Power_W':\n"
	noSensorLine  = "{'Power_W':99}\n"
	stateTopic    = "powermon433/sensor/0x0000"
	discoveryBase = "homeassistant/sensor/0x0000/0x0000_"
)

type lineSource struct {
	lines  []string
	cancel context.CancelFunc
}

func (l *lineSource) ReadLine() (string, error) {
	if len(l.lines) == 0 {
		if l.cancel != nil {
			l.cancel()
		}
		return "", io.EOF
	}
	line := l.lines[0]
	l.lines = l.lines[1:]
	return line, nil
}

func (l *lineSource) Close() error {
	return nil
}

type BridgeTest struct {
	suite.Suite
	publisher *mqtt.MockClient
	config    models.Config
}

func (s *BridgeTest) SetupTest() {
	s.publisher = &mqtt.MockClient{}
	s.config = models.DefaultConfig()
	s.config.Serial.ErrorDelay = models.Duration{}
}

func (s *BridgeTest) newBridge(lines ...string) *Bridge {
	return New(&lineSource{lines: lines}, s.publisher, s.config)
}

// publishedTopics returns topic and retain flag of every publish, in order.
func (s *BridgeTest) publishedTopics() []string {
	topics := make([]string, 0, len(s.publisher.Calls))
	for _, call := range s.publisher.Calls {
		if call.Method != "Publish" {
			continue
		}
		flag := "not retained"
		if call.Arguments.Bool(1) {
			flag = "retained"
		}
		topics = append(topics, call.Arguments.String(0)+" "+flag)
	}
	return topics
}

func (s *BridgeTest) payloadJSON(call int) string {
	data, err := json.Marshal(s.publisher.Calls[call].Arguments.Get(2))
	s.Require().NoError(err)
	return string(data)
}

func (s *BridgeTest) Test_Step_PublishesDiscoveryThenState() {
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := s.newBridge(goodLine)

	state, err := b.Step(State{})
	s.NoError(err)
	s.True(state.HasDevice)
	s.Equal("0x0000", state.LastDeviceID)
	s.Require().NotNil(state.LastReading)
	s.Len(state.LastReading.Fields, 5)

	s.Equal([]string{
		discoveryBase + "PrintDelta_ms/config retained",
		discoveryBase + "Total_Energy_Wh/config retained",
		discoveryBase + "Power_W/config retained",
		discoveryBase + "Temp_C/config retained",
		stateTopic + " not retained",
	}, s.publishedTopics())
	s.JSONEq(goodLineJSON, s.payloadJSON(4))

	config, ok := s.publisher.Calls[2].Arguments.Get(2).(mqtt.SensorJSON)
	s.Require().True(ok)
	s.Equal("power", config.DeviceClass)
	s.Equal(stateTopic, config.StateTopic)
}

func (s *BridgeTest) Test_Step_MalformedLineSkipsPublish() {
	b := s.newBridge(badLine)
	previous := State{LastDeviceID: "0x0000", HasDevice: true}

	state, err := b.Step(previous)
	s.True(errors.Is(err, powermon.ErrMalformedLine))
	s.Equal(kindParse, errorKind(err))
	s.Equal(previous, state)
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BridgeTest) Test_Step_RepublishStale() {
	s.config.Bridge.RepublishStale = true
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := s.newBridge(goodLine, badLine)

	state, err := b.Step(State{})
	s.Require().NoError(err)
	state, err = b.Step(state)
	s.True(errors.Is(err, powermon.ErrMalformedLine))
	s.False(errors.Is(err, ErrPublish))
	s.Equal("0x0000", state.LastDeviceID)

	topics := s.publishedTopics()
	s.Len(topics, 6)
	s.Equal(stateTopic+" not retained", topics[5])
	s.JSONEq(goodLineJSON, s.payloadJSON(5))
}

func (s *BridgeTest) Test_Step_RepublishStaleWithoutHistory() {
	s.config.Bridge.RepublishStale = true
	b := s.newBridge(badLine)

	state, err := b.Step(State{})
	s.True(errors.Is(err, powermon.ErrMalformedLine))
	s.False(state.HasDevice)
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BridgeTest) Test_Step_MissingSensorDropped() {
	s.config.Bridge.DropUnidentified = true
	b := s.newBridge(noSensorLine)

	_, err := b.Step(State{LastDeviceID: "0x0000", HasDevice: true})
	s.True(errors.Is(err, ErrMissingSensor))
	s.Equal(kindParse, errorKind(err))
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BridgeTest) Test_Step_MissingSensorPublishedUnderLastIdentity() {
	s.publisher.On("Publish", stateTopic, false, mock.Anything).Return(nil).Once()
	b := s.newBridge(noSensorLine)

	state, err := b.Step(State{LastDeviceID: "0x0000", HasDevice: true})
	s.True(errors.Is(err, ErrMissingSensor))
	s.False(errors.Is(err, ErrPublish))
	s.Equal([]string{stateTopic + " not retained"}, s.publishedTopics())
	s.JSONEq(`{"Power_W":99}`, s.payloadJSON(0))
	s.Require().NotNil(state.LastReading)
	s.Equal("0x0000", state.LastDeviceID)
	s.publisher.AssertExpectations(s.T())
}

func (s *BridgeTest) Test_Step_MissingSensorWithoutHistory() {
	b := s.newBridge(noSensorLine)

	state, err := b.Step(State{})
	s.True(errors.Is(err, ErrMissingSensor))
	s.False(state.HasDevice)
	s.publisher.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func (s *BridgeTest) Test_Step_PublishErrorDoesNotStopRemaining() {
	s.publisher.On("Publish", discoveryBase+"Total_Energy_Wh/config", true, mock.Anything).Return(errors.New("broker gone")).Once()
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := s.newBridge(goodLine)

	state, err := b.Step(State{})
	s.True(errors.Is(err, ErrPublish))
	s.Equal(kindPublish, errorKind(err))
	s.Contains(err.Error(), "Total_Energy_Wh")
	s.True(state.HasDevice)
	s.Len(s.publishedTopics(), 5)
}

func (s *BridgeTest) Test_Step_SerialError() {
	b := s.newBridge()

	state, err := b.Step(State{})
	s.True(errors.Is(err, ErrSerialRead))
	s.Equal(kindSerial, errorKind(err))
	s.Equal(State{}, state)
}

func (s *BridgeTest) Test_Step_DeviceIdentityFollowsLatestReading() {
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := s.newBridge(goodLine, otherLine)

	state, err := b.Step(State{})
	s.Require().NoError(err)
	state, err = b.Step(state)
	s.Require().NoError(err)
	s.Equal("0x0001", state.LastDeviceID)
	s.Equal("powermon433/sensor/0x0001 not retained", s.publishedTopics()[9])
}

func (s *BridgeTest) Test_Run_ContinuesPastErrors() {
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := &lineSource{lines: []string{badLine, goodLine, noSensorLine, otherLine}, cancel: cancel}
	b := New(source, s.publisher, s.config)

	state := b.Run(ctx)
	s.Equal("0x0001", state.LastDeviceID)
	topics := s.publishedTopics()
	s.Len(topics, 11)
	s.Equal(stateTopic+" not retained", topics[5])
}

func (s *BridgeTest) Test_Run_StopsWithoutErrorDelayOnCancel() {
	s.config.Serial.ErrorDelay = models.Duration{Duration: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := New(&lineSource{cancel: cancel}, s.publisher, s.config)

	done := make(chan State, 1)
	go func() {
		done <- b.Run(ctx)
	}()
	select {
	case state := <-done:
		s.False(state.HasDevice)
	case <-time.After(2 * time.Second):
		s.Fail("Run did not return after cancel")
	}
}

func (s *BridgeTest) Test_DiscoveryPrefix() {
	s.config.MQTT.DiscoveryPrefix = "ha"
	s.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	b := s.newBridge(goodLine)

	_, err := b.Step(State{})
	s.Require().NoError(err)
	s.Equal("ha/sensor/0x0000/0x0000_PrintDelta_ms/config retained", s.publishedTopics()[0])
}

func TestBridge(t *testing.T) {
	suite.Run(t, new(BridgeTest))
}
