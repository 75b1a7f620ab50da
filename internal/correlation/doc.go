// Package correlation turns the broker's fire-and-forget traffic into
// request/response calls and an up-to-date view of device state.
//
// # Waits
//
// Two kinds of wait are supported, each with a mandatory deadline:
//
//   - RequestReply: publish a command on one topic, take the first JSON
//     object that arrives on another (Tasmota cmnd/<id>/STATE answered on
//     stat/<id>/RESULT).
//   - AwaitStateTransition: publish "1"/"0" on an Espurna relay set topic
//     and wait for the relay topic to echo the expected value.
//
// Each wait owns a buffered completion channel stored in a table keyed by
// topic. HandleMessage completes it; the waiter removes it on every exit.
// Only one wait per topic may be pending.
//
// # Dispatch
//
// HandleMessage resolves the device for a topic, records what the message
// says in the registry, mirrors it to telemetry and broadcasts
// switch-status or bulb-status to push clients.
//
//	engine := correlation.New(correlation.Config{
//	    Transport:   mqttClient,
//	    Registry:    registry,
//	    Broadcaster: hub,
//	})
//	mqttClient.SetOnConnect(func() { _ = engine.Start(ctx) })
//
//	reply, err := engine.RequestReply(ctx, "cmnd/BULB/STATE", "stat/BULB/RESULT", "", 3*time.Second)
package correlation
