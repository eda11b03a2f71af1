// Package mqtt provides an optional publish-only MQTT client for
// announcing housekeeper operation events to a broker.
//
// The client wraps paho.mqtt.golang with auto-reconnect and bounded
// publish timeouts. It is wired in only when mqtt.enabled is true in
// the configuration; the engine treats a nil notifier as "publishing
// disabled".
//
// Topics follow <topic_prefix>/event/<event_name>, payloads are JSON.
package mqtt
