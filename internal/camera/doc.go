// Package camera relays an ESP32-CAM's stream to the users watching it.
//
// The camera sleeps until woken over MQTT, then opens a plain websocket to
// the gateway and polls get_mode. When a push client asks for the stream
// the Relay publishes the wake-up trigger and marks it as a viewer; every
// frame the camera sends is base64-encoded and forwarded to the viewers as
// camera_frame. When the last viewer leaves, the next frame is answered
// with stop-stream.
package camera
