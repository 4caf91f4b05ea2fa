// Command activation-client simulates devices against the activation API and
// drives the operator API.
//
//	activation-client compute-qualifier --serial SN1 --vin VIN1 --secret s3cret
//	activation-client activate --serial SN1 --vin VIN1 --secret s3cret
//	activation-client ready --serial SN1 --user user-1
//	activation-client import-factory records.json
package main
