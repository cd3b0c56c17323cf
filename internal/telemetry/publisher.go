// Package telemetry streams samples to an MQTT broker while a test
// runs, so external dashboards can watch a run live.
package telemetry

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/san-kum/ktune/internal/harness"
)

// Publisher implements harness.Observer by publishing every recorded
// sample as JSON under <topic>/<target>. Publishing is fire-and-forget
// at QoS 0; a lost frame only costs a dashboard point, the run log is
// unaffected.
type Publisher struct {
	client mqtt.Client
	topic  string
}

type samplePayload struct {
	Target  string  `json:"target"`
	T       float64 `json:"t"`
	CmdPos  float64 `json:"cmd_pos"`
	CmdVel  float64 `json:"cmd_vel"`
	MeasPos float64 `json:"meas_pos"`
	MeasVel float64 `json:"meas_vel"`
}

// NewPublisher connects to the broker, e.g. "tcp://localhost:1883".
func NewPublisher(broker, clientID, topic string) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect to broker %s", broker)
	}
	logrus.Infof("telemetry connected to %s, publishing under %s", broker, topic)
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) OnSample(target string, s harness.Sample) {
	payload, err := json.Marshal(samplePayload{
		Target:  target,
		T:       s.T,
		CmdPos:  s.CmdPos,
		CmdVel:  s.CmdVel,
		MeasPos: s.MeasPos,
		MeasVel: s.MeasVel,
	})
	if err != nil {
		logrus.Warnf("telemetry: marshal sample: %v", err)
		return
	}
	p.client.Publish(fmt.Sprintf("%s/%s", p.topic, target), 0, false, payload)
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
