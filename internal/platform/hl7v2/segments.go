package hl7v2

// Field tables for the supported segment types. Positions index the
// pipe-split line (see Fields); for MSH that is HL7 field number minus one.

var mshTable = FieldTable{
	{Name: "sendingApplication", Pos: 2, Extract: Text},
	{Name: "sendingFacility", Pos: 3, Extract: Text},
	{Name: "receivingApplication", Pos: 4, Extract: Text},
	{Name: "receivingFacility", Pos: 5, Extract: Text},
	{Name: "dateTimeOfMessage", Pos: 6, Extract: Text, Timestamp: true},
	{Name: "messageType", Pos: 8, Extract: Text},
	{Name: "messageControlId", Pos: 9, Extract: Text},
	{Name: "processingId", Pos: 10, Extract: Text},
	{Name: "versionId", Pos: 11, Extract: Text},
}

var pidTable = FieldTable{
	{Name: "id", Pos: 3, Extract: FirstComponent},
	{Name: "name", Pos: 5, Extract: PersonName},
	{Name: "birthDate", Pos: 7, Extract: Text, Timestamp: true},
	{Name: "gender", Pos: 8, Extract: Gender},
	{Name: "address", Pos: 11, Extract: PostalAddress},
	{Name: "phone", Pos: 13, Extract: Text},
}

var obxTable = FieldTable{
	{Name: "setId", Pos: 1, Extract: Text},
	{Name: "valueType", Pos: 2, Extract: Text},
	{Name: "observationIdentifier", Pos: 3, Extract: Text},
	{Name: "observationValue", Pos: 5, Extract: Text},
	{Name: "units", Pos: 6, Extract: Text},
	{Name: "observationResultStatus", Pos: 11, Extract: Text},
	{Name: "dateTimeOfObservation", Pos: 14, Extract: Text, Timestamp: true},
}

var al1Table = FieldTable{
	{Name: "setId", Pos: 1, Extract: Text},
	{Name: "allergyType", Pos: 2, Extract: Text},
	{Name: "allergyCodeMnemonicDescription", Pos: 3, Extract: Text},
	{Name: "allergySeverity", Pos: 4, Extract: Text},
	{Name: "allergyReaction", Pos: 5, Extract: Text},
}

var dg1Table = FieldTable{
	{Name: "setId", Pos: 1, Extract: Text},
	{Name: "diagnosisCodingMethod", Pos: 2, Extract: Text},
	{Name: "diagnosisCode", Pos: 3, Extract: Text},
	{Name: "diagnosisDescription", Pos: 4, Extract: Text},
	{Name: "diagnosisDateTime", Pos: 5, Extract: Text, Timestamp: true},
	{Name: "diagnosisType", Pos: 6, Extract: Text},
	{Name: "diagnosisPriority", Pos: 15, Extract: Text},
}

var in1Table = FieldTable{
	{Name: "setId", Pos: 1, Extract: Text},
	{Name: "insurancePlanId", Pos: 2, Extract: Text},
	{Name: "insuranceCompanyId", Pos: 3, Extract: Text},
	{Name: "insuranceCompanyName", Pos: 4, Extract: Text},
	{Name: "planEffectiveDate", Pos: 12, Extract: Text, Timestamp: true},
	{Name: "planExpirationDate", Pos: 13, Extract: Text, Timestamp: true},
	{Name: "planType", Pos: 15, Extract: Text},
	{Name: "nameOfInsured", Pos: 16, Extract: Text},
	{Name: "insuredsRelationshipToPatient", Pos: 17, Extract: Text},
	{Name: "releaseInformationCode", Pos: 27, Extract: Text},
	{Name: "verificationStatus", Pos: 45, Extract: Text},
	{Name: "coverageType", Pos: 47, Extract: Text},
}

var evnTable = FieldTable{
	{Name: "eventTypeCode", Pos: 1, Extract: Text},
	{Name: "recordedDateTime", Pos: 2, Extract: Text, Timestamp: true},
	{Name: "eventReasonCode", Pos: 3, Extract: Text},
	{Name: "operatorId", Pos: 4, Extract: Text},
	{Name: "eventOccurred", Pos: 5, Extract: Text, Timestamp: true},
	{Name: "plannedEventDateTime", Pos: 6, Extract: Text, Timestamp: true},
}

var pd1Table = FieldTable{
	{Name: "livingDependency", Pos: 13, Extract: Text},
	{Name: "livingArrangement", Pos: 14, Extract: Text},
	{Name: "protectionIndicator", Pos: 18, Extract: Text},
	{Name: "studentIndicator", Pos: 19, Extract: Text},
	{Name: "handicap", Pos: 20, Extract: Text},
}

var nk1Table = FieldTable{
	{Name: "name", Pos: 2, Extract: PersonName},
	{Name: "relationship", Pos: 3, Extract: Text},
	{Name: "address", Pos: 4, Extract: PostalAddress},
	{Name: "phone", Pos: 5, Extract: Text},
}

var pv1Table = FieldTable{
	{Name: "patientClass", Pos: 2, Extract: Text},
	{Name: "assignedPatientLocation", Pos: 3, Extract: Text},
	{Name: "attendingDoctor", Pos: 7, Extract: Text},
	{Name: "referringDoctor", Pos: 8, Extract: Text},
	{Name: "hospitalService", Pos: 10, Extract: Text},
	{Name: "admitSource", Pos: 14, Extract: Text},
	{Name: "patientType", Pos: 18, Extract: Text},
	// PV1-19. A line with only ten empty fields after PV1-7 puts its visit
	// number in PV1-18, which decodes as patientType (see TestDecode_ADT_A01).
	{Name: "visitNumber", Pos: 19, Extract: Text},
	{Name: "admitDateTime", Pos: 44, Extract: Text, Timestamp: true},
}

var pv2Table = FieldTable{
	{Name: "priorPendingLocation", Pos: 1, Extract: Text},
	{Name: "admitReason", Pos: 3, Extract: Text},
	{Name: "patientValuables", Pos: 5, Extract: Text},
	{Name: "expectedAdmitDateTime", Pos: 8, Extract: Text, Timestamp: true},
	{Name: "expectedDischargeDateTime", Pos: 9, Extract: Text, Timestamp: true},
	{Name: "visitDescription", Pos: 12, Extract: Text},
	{Name: "clinicOrganizationName", Pos: 23, Extract: Text},
	{Name: "patientStatusCode", Pos: 24, Extract: Text},
	{Name: "visitPriorityCode", Pos: 25, Extract: Text},
	{Name: "expectedSurgeryDateTime", Pos: 33, Extract: Text, Timestamp: true},
	{Name: "newbornBabyIndicator", Pos: 36, Extract: Text},
}

// builtinTables lists the default decoders as tag, result key, kind and table.
var builtinTables = []struct {
	tag   string
	key   string
	kind  Kind
	table FieldTable
}{
	{"MSH", "MSH", Singleton, mshTable},
	{"PID", "Patient", Singleton, pidTable},
	{"EVN", "EVN", Singleton, evnTable},
	{"PD1", "PD1", Singleton, pd1Table},
	{"PV1", "PV1", Singleton, pv1Table},
	{"PV2", "PV2", Singleton, pv2Table},
	{"NK1", "NK1", Repeatable, nk1Table},
	{"OBX", "OBX", Repeatable, obxTable},
	{"AL1", "AL1", Repeatable, al1Table},
	{"DG1", "DG1", Repeatable, dg1Table},
	{"IN1", "IN1", Repeatable, in1Table},
}

func init() {
	for _, b := range builtinTables {
		if err := b.table.Validate(); err != nil {
			panic(b.tag + ": " + err.Error())
		}
	}
}
