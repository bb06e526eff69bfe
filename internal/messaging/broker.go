package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type BrokerConfig struct {
	BrokerURL      string
	ClientName     string
	TopicPrefix    string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

type MsgBroker struct {
	config BrokerConfig
	client mqtt.Client
}

func NewBroker(cfg BrokerConfig) *MsgBroker {
	return &MsgBroker{config: cfg}
}

func (b *MsgBroker) Connect(ctx context.Context) error {
	if b.client == nil {
		b.client = mqtt.NewClient(b.optionsFromConfig())
	}
	if b.client.IsConnected() {
		return nil
	}

	if timeout := b.config.ConnectTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t := b.client.Connect()
	done := make(chan struct{})
	go func() {
		t.Wait()
		close(done)
	}()

	select {
	case <-done:
		return t.Error()
	case <-ctx.Done():
		b.client.Disconnect(250)
		return ctx.Err()
	}
}

func (b *MsgBroker) optionsFromConfig() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().AddBroker(b.config.BrokerURL)
	opts.SetClientID("scalepoll-" + b.config.ClientName)
	opts.SetAutoReconnect(true)
	return opts
}

func (b *MsgBroker) IsConnected() bool {
	if b.client == nil {
		return false
	}
	return b.client.IsConnected()
}

func (b *MsgBroker) Close(ctx context.Context) error {
	if b.client == nil {
		return nil
	}
	// Graceful disconnect with short timeout
	done := make(chan struct{})
	go func() {
		// 250 ms quiesce period
		b.client.Disconnect(250)
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MsgBroker) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	if b.client == nil {
		return errors.New("client not initialized")
	}
	qosByte, wait := qosToByte(qos)
	token := b.client.Publish(topic, qosByte, retain, payload)
	if !wait {
		return nil
	}
	timeout := b.config.PublishTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	select {
	case <-token.Done():
		return token.Error()
	case <-time.After(timeout):
		return fmt.Errorf("publish timeout after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func qosToByte(qos QoS) (byte, bool) {
	if qos > 2 {
		return 0, false
	}
	return byte(qos), true
}

func (b *MsgBroker) PublishJSON(ctx context.Context, topic string, qos QoS, retain bool, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Publish(ctx, topic, qos, retain, data)
}

func (b *MsgBroker) Topic(parts ...string) string {
	all := append([]string{b.config.TopicPrefix}, parts...)
	return strings.Join(all, "/")
}
