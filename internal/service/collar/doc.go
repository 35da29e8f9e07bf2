// Package collar feeds positions published by GPS collars over MQTT into the
// ingestion pipeline.
//
// Collars publish JSON to a topic such as safezone/collars/<entity>/position;
// the entity id is taken from the topic segment matched by the single-level
// wildcard of the subscription filter.
package collar
