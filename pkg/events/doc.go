// Package events carries deployment progress from the deployer to whoever
// is listening, usually the CLI printing progress lines.
//
// A Broker fans each published event out to every subscriber. Subscriber
// channels are buffered; a subscriber that falls behind misses events rather
// than blocking the deployment.
package events
