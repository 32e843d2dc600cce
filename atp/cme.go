package atp

import "strings"

// CME is a mobile equipment error code according to [27.007] 9.2.
type CME int

// CME error codes according to [27.007] 9.2.1 and 9.2.2
const (
	CMEPhoneFailure             CME = 0
	CMENoConnectionToPhone      CME = 1
	CMEPhoneAdapterLinkReserved CME = 2
	CMEOperationNotAllowed      CME = 3
	CMEOperationNotSupported    CME = 4
	CMEPHSIMPINRequired         CME = 5
	CMEPHFSIMPINRequired        CME = 6
	CMEPHFSIMPUKRequired        CME = 7
	CMESIMNotInserted           CME = 10
	CMESIMPINRequired           CME = 11
	CMESIMPUKRequired           CME = 12
	CMESIMFailure               CME = 13
	CMESIMBusy                  CME = 14
	CMESIMWrong                 CME = 15
	CMEIncorrectPassword        CME = 16
	CMESIMPIN2Required          CME = 17
	CMESIMPUK2Required          CME = 18
	CMEMemoryFull               CME = 20
	CMEInvalidIndex             CME = 21
	CMENotFound                 CME = 22
	CMEMemoryFailure            CME = 23
	CMETextStringTooLong        CME = 24
	CMEInvalidCharsInText       CME = 25
	CMEDialStringTooLong        CME = 26
	CMEInvalidCharsInDialString CME = 27
	CMENoNetworkService         CME = 30
	CMENetworkTimeout           CME = 31
	CMEEmergencyCallsOnly       CME = 32
	CMENetworkPINRequired       CME = 40
	CMENetworkPUKRequired       CME = 41
	CMEIncorrectParameters      CME = 50
	CMEUnknown                  CME = 100
)

var cmeTexts = map[CME]string{
	CMEPhoneFailure:             "phone failure",
	CMENoConnectionToPhone:      "no connection to phone",
	CMEPhoneAdapterLinkReserved: "phone-adaptor link reserved",
	CMEOperationNotAllowed:      "operation not allowed",
	CMEOperationNotSupported:    "operation not supported",
	CMEPHSIMPINRequired:         "PH-SIM PIN required",
	CMEPHFSIMPINRequired:        "PH-FSIM PIN required",
	CMEPHFSIMPUKRequired:        "PH-FSIM PUK required",
	CMESIMNotInserted:           "SIM not inserted",
	CMESIMPINRequired:           "SIM PIN required",
	CMESIMPUKRequired:           "SIM PUK required",
	CMESIMFailure:               "SIM failure",
	CMESIMBusy:                  "SIM busy",
	CMESIMWrong:                 "SIM wrong",
	CMEIncorrectPassword:        "incorrect password",
	CMESIMPIN2Required:          "SIM PIN2 required",
	CMESIMPUK2Required:          "SIM PUK2 required",
	CMEMemoryFull:               "memory full",
	CMEInvalidIndex:             "invalid index",
	CMENotFound:                 "not found",
	CMEMemoryFailure:            "memory failure",
	CMETextStringTooLong:        "text string too long",
	CMEInvalidCharsInText:       "invalid characters in text string",
	CMEDialStringTooLong:        "dial string too long",
	CMEInvalidCharsInDialString: "invalid characters in dial string",
	CMENoNetworkService:         "no network service",
	CMENetworkTimeout:           "network timeout",
	CMEEmergencyCallsOnly:       "network not allowed - emergency calls only",
	CMENetworkPINRequired:       "network personalization PIN required",
	CMENetworkPUKRequired:       "network personalization PUK required",
	CMEIncorrectParameters:      "incorrect parameters",
	CMEUnknown:                  "unknown",
}

func (c CME) String() string {
	if text, ok := cmeTexts[c]; ok {
		return text
	}
	return cmeTexts[CMEUnknown]
}

// CMEByText looks up the CME code for the given verbose error text.
func CMEByText(text string) (CME, bool) {
	for k, v := range cmeTexts {
		if strings.EqualFold(v, strings.TrimSpace(text)) {
			return k, true
		}
	}
	return 0, false
}
