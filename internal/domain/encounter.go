package domain

import "strconv"

// TriggerID identifies the encounter that produced a combat log
type TriggerID uint16

// Known trigger ids
const (
	TriggerInvalid                       TriggerID = 0
	TriggerWorldVsWorld                  TriggerID = 1
	TriggerValeGuardian                  TriggerID = 15438
	TriggerGorseval                      TriggerID = 15429
	TriggerSpiritRace                    TriggerID = 15415
	TriggerSabethaTheSaboteur            TriggerID = 15375
	TriggerSlothasor                     TriggerID = 16123
	TriggerBanditTrio                    TriggerID = 16088
	TriggerMatthiasGabrel                TriggerID = 16115
	TriggerSiegeTheStronghold            TriggerID = 16253
	TriggerKeepConstruct                 TriggerID = 16235
	TriggerTwistedCastle                 TriggerID = 16247
	TriggerXera                          TriggerID = 16246
	TriggerCairnTheIndomitable           TriggerID = 17194
	TriggerMursaatOverseer               TriggerID = 17172
	TriggerSamarog                       TriggerID = 17188
	TriggerDeimos                        TriggerID = 17154
	TriggerSoullessHorror                TriggerID = 19767
	TriggerRiverOfSouls                  TriggerID = 19828
	TriggerStatueOfIce                   TriggerID = 19691
	TriggerStatueOfDarkness              TriggerID = 19844
	TriggerStatueOfDeath                 TriggerID = 19536
	TriggerDhuum                         TriggerID = 19450
	TriggerConjuredAmalgamate            TriggerID = 43974
	TriggerTwinLargos                    TriggerID = 21105
	TriggerQadim                         TriggerID = 20934
	TriggerCardinalAdina                 TriggerID = 22006
	TriggerCardinalSabir                 TriggerID = 21964
	TriggerQadimThePeerless              TriggerID = 22000
	TriggerDecimaTheStormsinger          TriggerID = 26774
	TriggerGreerTheBlightbringer         TriggerID = 26725
	TriggerUraTheSteamshrieker           TriggerID = 26712
	TriggerMAMA                          TriggerID = 17021
	TriggerSiaxTheCorrupted              TriggerID = 17028
	TriggerEnsolyssOfTheEndlessTorment   TriggerID = 16948
	TriggerSkorvaldTheShattered          TriggerID = 17632
	TriggerArtsariiv                     TriggerID = 17949
	TriggerArkk                          TriggerID = 17759
	TriggerAiKeeperOfThePeak             TriggerID = 23254
	TriggerKanaxai                       TriggerID = 25572
	TriggerKanaxaiChallengeMode          TriggerID = 25577
	TriggerEparch                        TriggerID = 26231
	TriggerOldLionsCourt                 TriggerID = 25413
	TriggerOldLionsCourtChallengeMode    TriggerID = 25414
	TriggerIcebroodConstruct             TriggerID = 22154
	TriggerSuperKodanBrothers            TriggerID = 22343
	TriggerFraenirOfJormag               TriggerID = 22492
	TriggerBoneskinner                   TriggerID = 22521
	TriggerWhisperOfJormag               TriggerID = 22711
	TriggerAetherbladeHideout            TriggerID = 24033
	TriggerXunlaiJadeJunkyard            TriggerID = 23957
	TriggerKainengOverlook               TriggerID = 24485
	TriggerKainengOverlookChallengeMode  TriggerID = 24266
	TriggerHarvestTemple                 TriggerID = 43488
	TriggerCosmicObservatory             TriggerID = 25705
	TriggerTempleOfFebe                  TriggerID = 25989
	TriggerDemonKnight                   TriggerID = 26142
	TriggerSorrow                        TriggerID = 26143
	TriggerDreadwing                     TriggerID = 26161
	TriggerHellSister                    TriggerID = 26146
	TriggerUmbriel                       TriggerID = 26196
	TriggerStandardKittyGolem            TriggerID = 16199
	TriggerMediumKittyGolem              TriggerID = 19645
	TriggerLargeKittyGolem               TriggerID = 19676
	TriggerSooWon                        TriggerID = 35552
	TriggerFreezie                       TriggerID = 21333
	TriggerDregShark                     TriggerID = 21181
	TriggerHeartsAndMinds                TriggerID = 15884
)

// UnknownEncounterName is shown for trigger ids missing from the name table
const UnknownEncounterName = "Unknown"

var encounterNames = map[TriggerID]string{
	TriggerWorldVsWorld:                 "World vs. World",
	TriggerValeGuardian:                 "Vale Guardian",
	TriggerGorseval:                     "Gorseval",
	TriggerSpiritRace:                   "Spirit Race",
	TriggerSabethaTheSaboteur:           "Sabetha the Saboteur",
	TriggerSlothasor:                    "Slothasor",
	TriggerBanditTrio:                   "Bandit Trio",
	TriggerMatthiasGabrel:               "Matthias Gabrel",
	TriggerSiegeTheStronghold:           "Siege the Stronghold",
	TriggerKeepConstruct:                "Keep Construct",
	TriggerTwistedCastle:                "Twisted Castle",
	TriggerXera:                         "Xera",
	TriggerCairnTheIndomitable:          "Cairn the Indomitable",
	TriggerMursaatOverseer:              "Mursaat Overseer",
	TriggerSamarog:                      "Samarog",
	TriggerDeimos:                       "Deimos",
	TriggerSoullessHorror:               "Soulless Horror",
	TriggerRiverOfSouls:                 "River of Souls",
	TriggerStatueOfIce:                  "Statue of Ice",
	TriggerStatueOfDarkness:             "Statue of Darkness",
	TriggerStatueOfDeath:                "Statue of Death",
	TriggerDhuum:                        "Dhuum",
	TriggerConjuredAmalgamate:           "Conjured Amalgamate",
	TriggerTwinLargos:                   "Twin Largos",
	TriggerQadim:                        "Qadim",
	TriggerCardinalAdina:                "Cardinal Adina",
	TriggerCardinalSabir:                "Cardinal Sabir",
	TriggerQadimThePeerless:             "Qadim the Peerless",
	TriggerDecimaTheStormsinger:         "Decima, the Stormsinger",
	TriggerGreerTheBlightbringer:        "Greer, the Blightbringer",
	TriggerUraTheSteamshrieker:          "Ura, the Steamshrieker",
	TriggerMAMA:                         "MAMA",
	TriggerSiaxTheCorrupted:             "Siax the Corrupted",
	TriggerEnsolyssOfTheEndlessTorment:  "Ensolyss of the Endless Torment",
	TriggerSkorvaldTheShattered:         "Skorvald the Shattered",
	TriggerArtsariiv:                    "Artsariiv",
	TriggerArkk:                         "Arkk",
	TriggerAiKeeperOfThePeak:            "Ai, Keeper of the Peak",
	TriggerKanaxai:                      "Kanaxai",
	TriggerKanaxaiChallengeMode:         "Kanaxai CM",
	TriggerEparch:                       "Eparch",
	TriggerOldLionsCourt:                "Old Lion's Court",
	TriggerOldLionsCourtChallengeMode:   "Old Lion's Court CM",
	TriggerIcebroodConstruct:            "Icebrood Construct",
	TriggerSuperKodanBrothers:           "Super Kodan Brothers",
	TriggerFraenirOfJormag:              "Fraenir of Jormag",
	TriggerBoneskinner:                  "Boneskinner",
	TriggerWhisperOfJormag:              "Whisper of Jormag",
	TriggerAetherbladeHideout:           "Aetherblade Hideout",
	TriggerXunlaiJadeJunkyard:           "Xunlai Jade Junkyard",
	TriggerKainengOverlook:              "Kaineng Overlook",
	TriggerKainengOverlookChallengeMode: "Kaineng Overlook CM",
	TriggerHarvestTemple:                "Harvest Temple",
	TriggerCosmicObservatory:            "Cosmic Observatory",
	TriggerTempleOfFebe:                 "Temple of Febe",
	TriggerDemonKnight:                  "Demon Knight",
	TriggerSorrow:                       "Sorrow",
	TriggerDreadwing:                    "Dreadwing",
	TriggerHellSister:                   "Hell Sister",
	TriggerUmbriel:                      "Umbriel, Halberd of House Aurkus",
	TriggerStandardKittyGolem:           "Standard Kitty Golem",
	TriggerMediumKittyGolem:             "Medium Kitty Golem",
	TriggerLargeKittyGolem:              "Large Kitty Golem",
	TriggerSooWon:                       "Soo-Won",
	TriggerFreezie:                      "Freezie",
	TriggerDregShark:                    "Dreg Shark",
	TriggerHeartsAndMinds:               "Hearts and Minds",
}

// EncounterName resolves a trigger id to a display name
func EncounterName(id TriggerID) string {
	if name, ok := encounterNames[id]; ok {
		return name
	}
	return UnknownEncounterName
}

// IsValid reports whether the id was resolved from a log header
func (id TriggerID) IsValid() bool {
	return id != TriggerInvalid
}

func (id TriggerID) String() string {
	return strconv.Itoa(int(id))
}
