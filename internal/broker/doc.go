// Package broker wraps the MQTT client shared by collar ingestion and the
// alarm publisher.
package broker
