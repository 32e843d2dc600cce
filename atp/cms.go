package atp

import "strings"

// CMS is a message service failure code according to [27.005] 3.2.5.
type CMS int

// CMS error codes, 0...255 are network causes from 3GPP TS 24.011 and TS 23.040
const (
	CMSUnassignedNumber             CMS = 1
	CMSOperatorBarring              CMS = 8
	CMSCallBarred                   CMS = 10
	CMSShortMessageTransferRejected CMS = 21
	CMSDestinationOutOfService      CMS = 27
	CMSUnidentifiedSubscriber       CMS = 28
	CMSFacilityRejected             CMS = 29
	CMSUnknownSubscriber            CMS = 30
	CMSNetworkOutOfOrder            CMS = 38
	CMSTemporaryFailure             CMS = 41
	CMSCongestion                   CMS = 42
	CMSResourcesUnavailable         CMS = 47
	CMSMEFailure                    CMS = 300
	CMSSMSServiceReserved           CMS = 301
	CMSOperationNotAllowed          CMS = 302
	CMSOperationNotSupported        CMS = 303
	CMSInvalidPDUModeParameter      CMS = 304
	CMSInvalidTextModeParameter     CMS = 305
	CMSSIMNotInserted               CMS = 310
	CMSSIMPINRequired               CMS = 311
	CMSSIMFailure                   CMS = 313
	CMSSIMBusy                      CMS = 314
	CMSSIMWrong                     CMS = 315
	CMSMemoryFailure                CMS = 320
	CMSInvalidMemoryIndex           CMS = 321
	CMSMemoryFull                   CMS = 322
	CMSSMSCAddressUnknown           CMS = 330
	CMSNoNetworkService             CMS = 331
	CMSNetworkTimeout               CMS = 332
	CMSNoCNMAExpected               CMS = 340
	CMSUnknownError                 CMS = 500
)

var cmsTexts = map[CMS]string{
	CMSUnassignedNumber:             "unassigned number",
	CMSOperatorBarring:              "operator determined barring",
	CMSCallBarred:                   "call barred",
	CMSShortMessageTransferRejected: "short message transfer rejected",
	CMSDestinationOutOfService:      "destination out of service",
	CMSUnidentifiedSubscriber:       "unidentified subscriber",
	CMSFacilityRejected:             "facility rejected",
	CMSUnknownSubscriber:            "unknown subscriber",
	CMSNetworkOutOfOrder:            "network out of order",
	CMSTemporaryFailure:             "temporary failure",
	CMSCongestion:                   "congestion",
	CMSResourcesUnavailable:         "resources unavailable, unspecified",
	CMSMEFailure:                    "ME failure",
	CMSSMSServiceReserved:           "SMS service of ME reserved",
	CMSOperationNotAllowed:          "operation not allowed",
	CMSOperationNotSupported:        "operation not supported",
	CMSInvalidPDUModeParameter:      "invalid PDU mode parameter",
	CMSInvalidTextModeParameter:     "invalid text mode parameter",
	CMSSIMNotInserted:               "SIM not inserted",
	CMSSIMPINRequired:               "SIM PIN required",
	CMSSIMFailure:                   "SIM failure",
	CMSSIMBusy:                      "SIM busy",
	CMSSIMWrong:                     "SIM wrong",
	CMSMemoryFailure:                "memory failure",
	CMSInvalidMemoryIndex:           "invalid memory index",
	CMSMemoryFull:                   "memory full",
	CMSSMSCAddressUnknown:           "SMSC address unknown",
	CMSNoNetworkService:             "no network service",
	CMSNetworkTimeout:               "network timeout",
	CMSNoCNMAExpected:               "no +CNMA acknowledgement expected",
	CMSUnknownError:                 "unknown error",
}

func (c CMS) String() string {
	if text, ok := cmsTexts[c]; ok {
		return text
	}
	return cmsTexts[CMSUnknownError]
}

// CMSByText looks up the CMS code for the given verbose error text.
func CMSByText(text string) (CMS, bool) {
	for k, v := range cmsTexts {
		if strings.EqualFold(v, strings.TrimSpace(text)) {
			return k, true
		}
	}
	return 0, false
}
