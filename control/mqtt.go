package control

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/fraendk-lang/elastic-pulse-studio/engine"
)

const mqttTimeout = 5 * time.Second

// Bridge connects the registry to an MQTT broker. Messages published to
// <prefix>/param/<path> carry a decimal value and are applied to <path>.
// Feature snapshots are published to <prefix>/features.
type Bridge struct {
	client mqtt.Client
	reg    *Registry
	eng    *engine.Engine
	prefix string
}

// NewBridge connects to broker and subscribes to parameter topics.
func NewBridge(broker, prefix string, reg *Registry) (*Bridge, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, err
	}
	brokerurl, err := url.Parse(broker)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url: %w", err)
	}

	client := mqtt.NewClient(&mqtt.ClientOptions{
		Servers:              []*url.URL{brokerurl},
		ClientID:             fmt.Sprintf("pulsestudio-%s", hostname),
		AutoReconnect:        true,
		MaxReconnectInterval: 10 * time.Second,
		ConnectTimeout:       mqttTimeout,
	})
	conn := client.Connect()
	if !conn.WaitTimeout(mqttTimeout) {
		return nil, fmt.Errorf("connecting to %s: timed out", broker)
	}
	if err := conn.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	glog.Infof("connected to mqtt broker %s", broker)

	b := &Bridge{client: client, reg: reg, eng: reg.eng, prefix: strings.TrimSuffix(prefix, "/")}
	sub := client.Subscribe(b.prefix+"/param/#", 0, b.handle)
	if !sub.WaitTimeout(mqttTimeout) {
		client.Disconnect(250)
		return nil, fmt.Errorf("subscribing to %s/param/#: timed out", b.prefix)
	}
	if err := sub.Error(); err != nil {
		client.Disconnect(250)
		return nil, err
	}
	return b, nil
}

func (b *Bridge) handle(_ mqtt.Client, msg mqtt.Message) {
	path, value, err := ParseParamMessage(b.prefix, msg.Topic(), msg.Payload())
	if err != nil {
		log.Println("[WARNING] mqtt:", err)
		return
	}
	if err := b.reg.Apply(path, value); err != nil {
		log.Println("[WARNING] mqtt:", err)
	}
}

// ParseParamMessage extracts the parameter path and value of a message
// received on <prefix>/param/<path>.
func ParseParamMessage(prefix, topic string, payload []byte) (string, float64, error) {
	head := strings.TrimSuffix(prefix, "/") + "/param/"
	if !strings.HasPrefix(topic, head) || len(topic) == len(head) {
		return "", 0, fmt.Errorf("unexpected topic %q", topic)
	}
	path := strings.ReplaceAll(topic[len(head):], "/", ".")
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return "", 0, fmt.Errorf("topic %s: %w", topic, err)
	}
	return path, value, nil
}

func (b *Bridge) publish() error {
	st := b.eng.Status()
	bs, err := json.Marshal(struct {
		Features map[string]float64 `json:"features"`
		BPM      float64            `json:"bpm"`
		Time     float64            `json:"time"`
	}{st.Features.Features.Map(), st.Features.BPM, st.Transport.Time})
	if err != nil {
		return err
	}
	token := b.client.Publish(b.prefix+"/features", 0, false, string(bs))
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("publish timed out")
	}
	return token.Error()
}

// StartPublisher publishes feature snapshots at rate per second until done
// is closed.
func (b *Bridge) StartPublisher(rate int, done chan struct{}) {
	if rate <= 0 {
		rate = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := b.publish(); err != nil {
				log.Println("[ERROR] failed to publish features:", err)
			}
		}
	}
}

// Close disconnects from the broker.
func (b *Bridge) Close() {
	b.client.Disconnect(250)
}
