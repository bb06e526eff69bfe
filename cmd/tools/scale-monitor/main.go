package main

// Subscribes to the reading topics published by scalepoll and prints every
// reading as it arrives. Handy when the daemon runs headless on another box.

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"scalepoll/internal/scale"
)

func main() {
	broker := flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	prefix := flag.String("prefix", "scale", "topic prefix scalepoll publishes under")
	raw := flag.Bool("raw", false, "print raw JSON payloads instead of formatted lines")
	flag.Parse()

	opts := mqtt.NewClientOptions().AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("scale-monitor-%d", os.Getpid()))
	opts.SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
		log.Fatalf("mqtt connect %s: %v", *broker, tok.Error())
	}
	defer client.Disconnect(250)

	topic := *prefix + "/+/reading"
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		if *raw {
			fmt.Printf("%s %s\n", msg.Topic(), msg.Payload())
			return
		}
		var r scale.Reading
		if err := json.Unmarshal(msg.Payload(), &r); err != nil {
			log.Printf("bad payload on %s: %v", msg.Topic(), err)
			return
		}
		fmt.Printf("%s  %-30s  %s %s   (raw: %s)\n",
			r.At.Format(time.RFC3339), msg.Topic(), r.Value, r.Unit, r.Raw)
	}
	if tok := client.Subscribe(topic, 0, handler); tok.Wait() && tok.Error() != nil {
		log.Fatalf("subscribe %s: %v", topic, tok.Error())
	}
	log.Printf("subscribed to %s on %s", topic, *broker)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("bye")
}
