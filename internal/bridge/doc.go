// Package bridge exposes cloud accessories to the home automation host over
// MQTT.
//
// Topics follow graylogic/{category}/alexa/{id}:
//
//	command/alexa/{accessory}   host -> bridge   set a characteristic
//	ack/alexa/{accessory}       bridge -> host   command outcome
//	state/alexa/{accessory}     bridge -> host   retained, published on change
//	request/alexa/{request}     host -> bridge   read_state, read_all, list_accessories
//	response/alexa/{request}    bridge -> host   request outcome
//	health/alexa                bridge -> host   retained, also the MQTT will
//
// State is discovered by polling: every poll interval each accessory's
// readable characteristics are read through the accessory registry (one
// batch query refreshes all of them) and published when any value differs
// from the last published one.
package bridge
