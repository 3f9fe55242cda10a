package flow

import "strings"

// URL fragments identifying each page of the booking flow.
const (
	TermsFragment        = "TermsAndConditions.xhtml"
	DetailsFragment      = "CleanBookingDE.xhtml"
	ConfirmationFragment = "LicenceDetailsConfirmation.xhtml"
	LocationFragment     = "LocationSelection.xhtml"
	SlotsFragment        = "SlotSelection.xhtml"
)

// JSF element ids on the booking pages.
const (
	welcomeContinueID = "j_id_60:aboutThisServiceForm:continueButton"

	termsAcceptID = "termsAndConditions:TermsAndConditionsForm:acceptButton"

	licenceInputID      = "CleanBookingDEForm:dlNumber"
	contactNameInputID  = "CleanBookingDEForm:contactName"
	contactPhoneInputID = "CleanBookingDEForm:contactPhone"
	testTypeDropdownID  = "CleanBookingDEForm:productType"
	testTypeCarOptionID = "CleanBookingDEForm:productType_1"
	detailsContinueID   = "CleanBookingDEForm:actionFieldList:confirmButtonField:confirmButton"

	confirmationContinueID = "BookingConfirmationForm:actionFieldList:confirmButtonField:confirmButton"

	regionDropdownID   = "BookingSearchForm:region"
	locationContinueID = "BookingSearchForm:actionFieldList:confirmButtonField:confirmButton"

	slotTableID      = "slotSelectionForm:slotTable"
	changeLocationID = "slotSelectionForm:actionFieldList:j_id_6o:j_id_6p"
)

// CSS selector matching every slot label under the availability table.
const slotLabelSelector = "label[for^='slotSelectionForm:slotTable:']"

// PrimeFaces renders single selects as widgets opened through a trigger
// element inside the component root.
const dropdownTrigger = " .ui-selectonemenu-trigger"

// cssID turns a JSF element id into a CSS selector, escaping the colons JSF
// embeds in ids.
func cssID(id string) string {
	return "#" + strings.ReplaceAll(id, ":", "\\:")
}
