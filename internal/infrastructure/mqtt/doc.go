// Package mqtt provides the broker connection for the homegate gateway.
//
// Every relay, bulb and sensor in the house talks MQTT, so this client is
// the gateway's only path to field devices. It manages:
//   - Connection to the broker with connect-retry and auto-reconnect
//   - Publishing plain-text device commands
//   - Topic subscriptions that are restored after every reconnect
//   - Last Will and Testament on homegate/system/status
//
// # Startup
//
// Connect never blocks forever on a missing broker. If the first CONNACK
// does not arrive within the connect timeout the client is returned anyway
// and paho keeps retrying; callers register SetOnConnect to (re)subscribe
// device topics once the link is up.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("ESPURNA-SWITCH1/relay/0", 0,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	err = client.PublishString("ESPURNA-SWITCH1/relay/0/set", "1", 0, false)
package mqtt
